package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/s0up4200/posterarr/provider"
)

const verifyTimeout = 30 * time.Second

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify [service...]",
	Short: "Check Plex and provider credentials",
	Long: `Test the connection to Plex and validate the API key of every configured
artwork provider. Providers without a key are reported as skipped.

Pass service names (plex, tmdb, fanart, omdb, tvdb) to check only those.`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

// selectChecks returns the provider checks to run for names and whether
// Plex is included. No names selects everything.
func selectChecks(registry *provider.Registry, names []string) (map[string]provider.Checker, bool, error) {
	if len(names) == 0 {
		return registry.Checkers(), true, nil
	}

	checks := make(map[string]provider.Checker)
	withPlex := false
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "plex" {
			withPlex = true
			continue
		}
		p, ok := registry.Get(name)
		if !ok {
			return nil, false, fmt.Errorf("unknown service %q, want plex or one of: %s", raw, strings.Join(registry.Names(), ", "))
		}
		checker, ok := p.(provider.Checker)
		if !ok {
			return nil, false, fmt.Errorf("provider %s cannot verify credentials", name)
		}
		checks[name] = checker
	}
	return checks, withPlex, nil
}

type checkResult struct {
	name   string
	detail string
	err    error
}

func runVerify(cmd *cobra.Command, args []string) error {
	st, err := loadState()
	if err != nil {
		return err
	}
	registry, err := newProviders(st)
	if err != nil {
		return err
	}
	checks, withPlex, err := selectChecks(registry, args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), verifyTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results []checkResult
	)
	record := func(r checkResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}

	// checks report their own failures so one bad key does not cancel the rest
	var g errgroup.Group

	if withPlex {
		server, err := newPlex()
		if err != nil {
			return err
		}
		g.Go(func() error {
			id, err := server.Ping(ctx)
			detail := ""
			if err == nil {
				detail = fmt.Sprintf("version %s", id.Version)
			}
			record(checkResult{name: "plex", detail: detail, err: err})
			return nil
		})
	}

	for name, checker := range checks {
		g.Go(func() error {
			detail, err := checker.Check(ctx)
			record(checkResult{name: name, detail: detail, err: err})
			return nil
		})
	}

	_ = g.Wait()

	slices.SortFunc(results, func(a, b checkResult) int {
		switch {
		case a.name == b.name:
			return 0
		case a.name == "plex":
			return -1
		case b.name == "plex":
			return 1
		case a.name < b.name:
			return -1
		default:
			return 1
		}
	})

	failed := 0
	for _, r := range results {
		switch {
		case errors.Is(r.err, provider.ErrMissingAPIKey):
			fmt.Printf("- %-8s skipped, no API key\n", r.name)
		case r.err != nil:
			failed++
			fmt.Printf("✗ %-8s %v\n", r.name, r.err)
		case r.detail == "":
			fmt.Printf("✓ %-8s ok\n", r.name)
		default:
			fmt.Printf("✓ %-8s %s\n", r.name, r.detail)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(results))
	}
	return nil
}
