// Package state loads and checkpoints the engine's persistent stores as a
// group.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog"

	"github.com/s0up4200/posterarr/backup"
	"github.com/s0up4200/posterarr/cache"
	"github.com/s0up4200/posterarr/cooldown"
	"github.com/s0up4200/posterarr/proposal"
	"github.com/s0up4200/posterarr/quota"
	"github.com/s0up4200/posterarr/snapshot"
)

// Snapshot kinds for the stores that do not persist themselves
const (
	kindCooldowns = "cooldowns"
	kindQuota     = "quota"
)

// Paths names the checkpoint file of each store. An empty path disables
// persistence for that store.
type Paths struct {
	Cache     string
	Cooldowns string
	Quota     string
	Backups   string
	Proposals string
}

// DefaultPaths returns the standard file names inside dir
func DefaultPaths(dir string) Paths {
	return Paths{
		Cache:     filepath.Join(dir, "provider_cache.json"),
		Cooldowns: filepath.Join(dir, "cooldowns.json"),
		Quota:     filepath.Join(dir, "quota.json"),
		Backups:   filepath.Join(dir, "artwork_backups.json"),
		Proposals: filepath.Join(dir, "proposals.json"),
	}
}

// State groups the stores shared by every run. Nil stores are skipped.
type State struct {
	Cache     *cache.Cache
	Cooldowns *cooldown.Registry
	Quota     *quota.Tracker
	Backups   *backup.Store
	Proposals *proposal.Queue

	paths  Paths
	logger zerolog.Logger

	// checkpoints that failed to load; Save leaves them untouched
	held map[string]error
}

// New creates a State persisting to paths
func New(paths Paths, logger zerolog.Logger) *State {
	return &State{
		paths:  paths,
		logger: logger.With().Str("component", "state").Logger(),
		held:   make(map[string]error),
	}
}

// Load restores every store from its checkpoint. Missing files are fine.
// A file that cannot be read (corrupt, or written by a newer release) is
// logged, skipped and held: Save will not overwrite it.
func (s *State) Load() error {
	var errs []error
	clear(s.held)

	if s.Cache != nil && s.paths.Cache != "" {
		errs = append(errs, s.hold(s.paths.Cache, s.Cache.Load(s.paths.Cache)))
	}
	if s.Cooldowns != nil && s.paths.Cooldowns != "" {
		var entries map[string]cooldown.Entry
		err := readOptional(s.paths.Cooldowns, kindCooldowns, &entries)
		if err == nil {
			s.Cooldowns.Restore(entries)
		}
		errs = append(errs, s.hold(s.paths.Cooldowns, err))
	}
	if s.Quota != nil && s.paths.Quota != "" {
		var counts map[string]map[string]int
		err := readOptional(s.paths.Quota, kindQuota, &counts)
		if err == nil && counts != nil {
			s.Quota.Restore(counts)
		}
		errs = append(errs, s.hold(s.paths.Quota, err))
	}
	if s.Backups != nil && s.paths.Backups != "" {
		errs = append(errs, s.hold(s.paths.Backups, s.Backups.Load(s.paths.Backups)))
	}
	if s.Proposals != nil && s.paths.Proposals != "" {
		errs = append(errs, s.hold(s.paths.Proposals, s.Proposals.Load(s.paths.Proposals)))
	}

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to restore some checkpoints, they will not be overwritten")
	}
	return err
}

// Held returns the checkpoint paths Save skips because they failed to load
func (s *State) Held() []string {
	paths := make([]string, 0, len(s.held))
	for p := range s.held {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

func (s *State) hold(path string, err error) error {
	if err != nil {
		s.held[path] = err
	}
	return err
}

// Save checkpoints every store. All stores are attempted even when one
// fails. Held checkpoints are skipped.
func (s *State) Save() error {
	var errs []error

	if s.writable(s.Cache != nil, s.paths.Cache) {
		errs = append(errs, s.Cache.Save(s.paths.Cache))
	}
	if s.writable(s.Cooldowns != nil, s.paths.Cooldowns) {
		errs = append(errs, snapshot.Write(s.paths.Cooldowns, kindCooldowns, s.Cooldowns.Snapshot()))
	}
	if s.writable(s.Quota != nil, s.paths.Quota) {
		errs = append(errs, snapshot.Write(s.paths.Quota, kindQuota, s.Quota.Snapshot()))
	}
	if s.writable(s.Backups != nil, s.paths.Backups) {
		errs = append(errs, s.Backups.Save(s.paths.Backups))
	}
	if s.writable(s.Proposals != nil, s.paths.Proposals) {
		errs = append(errs, s.Proposals.Save(s.paths.Proposals))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

func (s *State) writable(present bool, path string) bool {
	if !present || path == "" {
		return false
	}
	if err, ok := s.held[path]; ok {
		s.logger.Debug().Err(err).Str("path", path).Msg("Skipping checkpoint that failed to load")
		return false
	}
	return true
}

func readOptional(path, kind string, v any) error {
	if err := snapshot.Read(path, kind, v); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", kind, err)
	}
	return nil
}
