package server

import (
	"context"
	"errors"
	"time"

	"github.com/s0up4200/posterarr/processor"
)

// schedule triggers a run every interval. Ticks that land while a run is
// active are skipped.
func (s *Server) schedule(ctx context.Context) {
	if s.cfg.RunOnStart {
		s.tick()
	}
	if s.cfg.Interval <= 0 {
		return
	}

	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("Scheduler started")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Server) tick() {
	err := s.Trigger()
	switch {
	case err == nil:
		s.logger.Info().Msg("Scheduled run started")
	case errors.Is(err, processor.ErrRunInProgress):
		s.logger.Info().Msg("Skipping scheduled run, previous run still active")
	default:
		s.logger.Warn().Err(err).Msg("Scheduled run not started")
	}
}
