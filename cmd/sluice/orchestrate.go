package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sluicehq/sluice/pkg/orchestrator"
)

func runOrchestrate(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	batch, _ := cmd.Flags().GetInt("batch")
	through, _ := cmd.Flags().GetInt("through")
	next, _ := cmd.Flags().GetBool("next")
	count, _ := cmd.Flags().GetInt("count")
	resume, _ := cmd.Flags().GetBool("resume")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	status, _ := cmd.Flags().GetBool("status")

	a, err := newApp(cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if status {
		return printStatus(a)
	}

	if !dryRun {
		if err := ensureDataDirs(a.cfg); err != nil {
			return err
		}
	}

	numbers, err := selectBatchNumbers(a, batch, through, next, count)
	if err != nil {
		return err
	}
	if len(numbers) == 0 {
		fmt.Println("Nothing to do: pass --batch, --batch --through, or --next")
		return nil
	}

	ctx := context.Background()
	for _, n := range numbers {
		name := batchName(n)

		if resume {
			step, err := a.orch.ResumeStep(name)
			if err != nil {
				return fmt.Errorf("compute resume step for %s: %w", name, err)
			}
			fmt.Printf("%s: resuming from %s\n", name, step)
		}

		if dryRun {
			step, err := a.orch.ResumeStep(name)
			if err != nil {
				return fmt.Errorf("compute resume step for %s: %w", name, err)
			}
			fmt.Printf("%s: would run from %s through rebuild (dry run, no step executed)\n", name, step)
			continue
		}

		res, err := a.orch.Run(ctx, name)
		if err != nil {
			return err
		}
		printResult(name, res)
	}
	return nil
}

// selectBatchNumbers expands --batch/--through/--next/--count into the
// concrete list of batch numbers to drive, per spec §6's CLI surface.
func selectBatchNumbers(a *app, batch, through int, next bool, count int) ([]int, error) {
	switch {
	case next:
		if count < 1 {
			count = 1
		}
		var numbers []int
		after := 0
		for i := 0; i < count; i++ {
			n, ok, err := a.nextUnprocessed(after)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			numbers = append(numbers, n)
			after = n
		}
		return numbers, nil

	case batch > 0 && through > 0:
		if through < batch {
			return nil, fmt.Errorf("--through %d must be >= --batch %d", through, batch)
		}
		numbers := make([]int, 0, through-batch+1)
		for n := batch; n <= through; n++ {
			numbers = append(numbers, n)
		}
		return numbers, nil

	case batch > 0:
		return []int{batch}, nil

	default:
		return nil, nil
	}
}

func printResult(name string, res orchestrator.Result) {
	fmt.Printf("%s: resumed from %s, status=%s, cracked=%d\n", name, res.ResumedFrom, res.Batch.Status, res.Batch.Cracked)
	if res.FeedbackErr != nil {
		fmt.Printf("%s: feedback step failed: %v (cracks are durable; rerun %s --batch %d --resume to retry)\n",
			name, res.FeedbackErr, "sluice", batchNumberOf(name))
	}
	if res.RebuildErr != nil {
		fmt.Printf("%s: rebuild step failed: %v (feedback is durable; rerun to retry rebuild alone)\n", name, res.RebuildErr)
	}
}

func batchNumberOf(name string) int {
	m := batchFileRe.FindStringSubmatch(name + ".txt")
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func printStatus(a *app) error {
	snapshot, err := a.store.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot state: %w", err)
	}
	if len(snapshot.Batches) == 0 {
		fmt.Println("No batches recorded yet")
		return nil
	}
	names := make([]string, 0, len(snapshot.Batches))
	for name := range snapshot.Batches {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("%-14s %-12s %-10s %-8s %s\n", "BATCH", "STATUS", "CRACKED", "HASHES", "ATTACKS LEFT")
	for _, name := range names {
		b := snapshot.Batches[name]
		fmt.Printf("%-14s %-12s %-10d %-8d %d\n", b.Name, b.Status, b.Cracked, b.HashCount, len(b.AttacksRemaining))
	}
	return nil
}
