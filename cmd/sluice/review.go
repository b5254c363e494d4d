package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sluicehq/sluice/pkg/metrics"
	"github.com/sluicehq/sluice/pkg/review"
	"github.com/sluicehq/sluice/pkg/stage2"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Print the ROI review report across every recorded batch",
	Long: `Review joins per-attack aggregates from the state store into a
cost/benefit table and a set of DROP/KEEP_ON_TRIAL/BUDGET_ALERT/REORDER/
INVESTIGATE recommendations. It is read-only: it never mutates the state
store or the attack order.`,
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().Bool("export", false, "Also publish each attack's marginal ROI to the metrics registry")
	reviewCmd.Flags().String("listen", "", "If set (e.g. 127.0.0.1:9090), serve /metrics with the exported ROI gauges until interrupted, instead of exiting immediately")
}

func runReview(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	export, _ := cmd.Flags().GetBool("export")
	listenAddr, _ := cmd.Flags().GetString("listen")

	a, err := newApp(cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	snapshot, err := a.store.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot state: %w", err)
	}

	order := snapshot.AttackOrder
	if len(order) == 0 {
		order = attackNames(stage2.DefaultOrder())
	}

	report := review.Build(snapshot, order)
	if export || listenAddr != "" {
		report.Export()
	}

	printReviewReport(report)

	if listenAddr == "" {
		return nil
	}
	return serveMetricsUntilInterrupted(listenAddr)
}

// serveMetricsUntilInterrupted starts the /metrics HTTP exporter in the
// teacher's background-goroutine-plus-ListenAndServe shape
// (cmd/warren/main.go's metrics server), but blocks the foreground
// goroutine on SIGINT/SIGTERM instead of returning — the review command
// has nothing else left to do once the report is printed, and the
// gauges it just set are only useful while something can still scrape them.
func serveMetricsUntilInterrupted(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()
	fmt.Printf("serving /metrics on http://%s (Ctrl-C to stop)\n", addr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("metrics server: %w", err)
	case <-sig:
		return srv.Close()
	}
}

func attackNames(attacks []stage2.Attack) []string {
	names := make([]string, len(attacks))
	for i, a := range attacks {
		names[i] = a.Name
	}
	return names
}

func printReviewReport(report review.Report) {
	fmt.Printf("%-28s %-5s %-8s %-8s %-10s %-14s %s\n",
		"ATTACK", "TIER", "BATCHES", "CRACKS", "RATE", "COST SHARE%", "MARGINAL ROI")
	for _, r := range report.Rows {
		fmt.Printf("%-28s %-5d %-8d %-8d %-10.6f %-14.1f %.2f\n",
			r.Attack, r.Tier, r.Batches, r.Cracks, r.Rate, r.CostSharePct, r.MarginalROI)
	}

	if len(report.Recommendations) == 0 {
		fmt.Println("\nNo recommendations.")
		return
	}
	fmt.Println("\nRecommendations:")
	for _, rec := range report.Recommendations {
		fmt.Printf("  [%s] %s\n", rec.Kind, rec.Message)
	}
}
