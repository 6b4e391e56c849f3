package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/s0up4200/posterarr/cooldown"
	"github.com/s0up4200/posterarr/quota"
	"github.com/s0up4200/posterarr/ratelimit"
)

var statusJSON bool

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provider cooldowns, quota usage, rate limits and cache size",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print as JSON")
}

type statusReport struct {
	Cooldowns        []cooldown.Entry `json:"cooldowns"`
	Quota            []quota.Usage    `json:"quota"`
	CacheEntries     int              `json:"cache_entries"`
	CacheNamespaces  map[string]int   `json:"cache_namespaces"`
	PendingProposals int              `json:"pending_proposals"`
	Backups          int              `json:"backups"`
	RateLimits       []hostRate       `json:"rate_limits"`
	HeldCheckpoints  []string         `json:"held_checkpoints,omitempty"`
}

type hostRate struct {
	Host     string  `json:"host"`
	Provider string  `json:"provider"`
	PerSec   float64 `json:"requests_per_second"`
}

// rateLimitReport lists the effective pacing per host, sorted by host
func rateLimitReport(limits *ratelimit.Registry) []hostRate {
	owner := make(map[string]string)
	for name, hosts := range providerHosts {
		for _, h := range hosts {
			owner[h] = name
		}
	}

	out := make([]hostRate, 0)
	for _, host := range limits.Hosts() {
		l, ok := limits.Get(host)
		if !ok {
			continue
		}
		out = append(out, hostRate{Host: host, Provider: owner[host], PerSec: l.Rate()})
	}
	return out
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := loadState()
	if err != nil {
		return err
	}

	report := statusReport{
		Cooldowns:        st.Cooldowns.Active(),
		Quota:            st.Quota.Stats(),
		CacheEntries:     st.Cache.Len(),
		CacheNamespaces:  st.Cache.Namespaces(),
		PendingProposals: st.Proposals.Len(),
		Backups:          st.Backups.Len(),
		RateLimits:       rateLimitReport(newRateLimits()),
		HeldCheckpoints:  st.Held(),
	}

	if statusJSON {
		return printJSON(report)
	}

	fmt.Println("Cooldowns:")
	if len(report.Cooldowns) == 0 {
		fmt.Println("  none")
	}
	for _, c := range report.Cooldowns {
		fmt.Printf("  • %s: %s, %s remaining\n", c.Provider, c.Reason, time.Until(c.Until).Round(time.Second))
	}

	fmt.Println("\nQuota (today, UTC):")
	for _, u := range report.Quota {
		if u.Limited {
			fmt.Printf("  • %s: %d/%d (%d remaining)\n", u.Provider, u.Used, u.Limit, u.Remaining)
		} else {
			fmt.Printf("  • %s: %d (unlimited)\n", u.Provider, u.Used)
		}
	}

	fmt.Printf("\nCache: %d entries\n", report.CacheEntries)
	namespaces := make([]string, 0, len(report.CacheNamespaces))
	for ns := range report.CacheNamespaces {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	for _, ns := range namespaces {
		fmt.Printf("  • %s: %d\n", ns, report.CacheNamespaces[ns])
	}

	fmt.Println("\nRate limits:")
	for _, r := range report.RateLimits {
		fmt.Printf("  • %s (%s): %.2g req/s\n", r.Host, r.Provider, r.PerSec)
	}

	fmt.Printf("\nPending proposals: %d\n", report.PendingProposals)
	fmt.Printf("Backups:           %d\n", report.Backups)

	if len(report.HeldCheckpoints) > 0 {
		fmt.Println("\nUnreadable checkpoints (left untouched):")
		for _, p := range report.HeldCheckpoints {
			fmt.Printf("  • %s\n", p)
		}
	}

	return nil
}
