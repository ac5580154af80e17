package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mwestrom/plotline"
	"github.com/mwestrom/plotline/ingest"
	"github.com/mwestrom/plotline/ledger"
)

var (
	headline = color.New(color.FgCyan, color.Bold)
	good     = color.New(color.FgGreen)
	bad      = color.New(color.FgRed)
	dim      = color.New(color.Faint)
)

var processCmd = &cobra.Command{
	Use:   "process [file]",
	Short: "Ingest draft notes into the knowledge graph",
	Long: `Processes every file in the drafts directory in order: parse,
classify, extract entities, resolve them against the graph, and file
the document under its kind directory. Pass a path to process a single
file instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *plotline.Engine) error {
			if len(args) == 1 {
				res, err := eng.ProcessFile(ctx, args[0])
				if err != nil {
					return err
				}
				printResult(res)
				return nil
			}

			report, err := eng.Process(ctx)
			if err != nil {
				return err
			}
			printReport(report, false)
			return nil
		})
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show what process would do without writing anything",
	Long: `Runs the full pipeline against the drafts directory but stops
before the graph write: no nodes are created, no files are moved, and
the ledger is untouched. Use it to catch conflicts before committing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *plotline.Engine) error {
			report, err := eng.Preview(ctx)
			if err != nil {
				return err
			}
			printReport(report, true)
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workspace and graph statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *plotline.Engine) error {
			st, err := eng.Status(ctx)
			if err != nil {
				return err
			}
			printStatus(st)
			return nil
		})
	},
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Check connectivity to the graph, ledger, and completion service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(ctx context.Context, eng *plotline.Engine) error {
			var failed bool
			for _, check := range eng.Test(ctx) {
				if check.OK {
					good.Printf("  ok   %s\n", check.Name)
					continue
				}
				failed = true
				bad.Printf("  FAIL %s", check.Name)
				if check.Detail != "" {
					fmt.Printf(": %s", check.Detail)
				}
				fmt.Println()
			}
			if failed {
				return fmt.Errorf("one or more checks failed")
			}
			return nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every node, edge, and ledger record",
	Long: `Wipes the knowledge graph and the ingestion ledger. Processed
files stay where they are on disk. This cannot be undone; the command
asks for typed confirmation first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bad.Println("This deletes the entire graph and ledger. Files on disk are kept.")
		fmt.Print(`Type "RESET" to confirm: `)
		var answer string
		fmt.Fscanln(cmd.InOrStdin(), &answer)
		if answer != "RESET" {
			fmt.Println("Aborted.")
			return nil
		}
		return withEngine(func(ctx context.Context, eng *plotline.Engine) error {
			if err := eng.Reset(ctx); err != nil {
				return err
			}
			good.Println("Workspace reset.")
			return nil
		})
	},
}

func printReport(report *ingest.Report, preview bool) {
	if len(report.Results) == 0 {
		fmt.Println("No drafts to process.")
		return
	}

	for _, res := range report.Results {
		printResult(res)
	}

	fmt.Println()
	if preview {
		headline.Println("Preview only, nothing was written.")
	}
	fmt.Printf("%d processed, %d failed, %d skipped\n",
		report.Processed, report.Failed, report.Skipped)
}

func printResult(res ingest.Result) {
	switch res.Status {
	case ledger.StatusProcessed, ledger.StatusPending:
		good.Printf("  %-9s", res.Status)
	case ledger.StatusSkipped:
		dim.Printf("  %-9s", res.Status)
	default:
		bad.Printf("  %-9s", res.Status)
	}
	fmt.Printf(" %s", res.Path)
	if res.Kind != "" {
		dim.Printf("  [%s]", res.Kind)
	}
	fmt.Println()
	if res.Detail != "" {
		dim.Printf("            %s\n", res.Detail)
	}
	if res.Diff != nil {
		dim.Printf("            %d new, %d updated, %d edges\n",
			len(res.Diff.Creates), len(res.Diff.Updates), len(res.Diff.Edges))
	}
}

func printStatus(st *plotline.Status) {
	headline.Println("Graph")
	if len(st.Nodes) == 0 {
		dim.Println("  empty")
	}
	kinds := make([]string, 0, len(st.Nodes))
	for kind := range st.Nodes {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Printf("  %-14s %d\n", kind, st.Nodes[kind])
	}
	fmt.Printf("  %-14s %d\n", "edges", st.Edges)

	fmt.Println()
	headline.Println("Ledger")
	fmt.Printf("  %-14s %d\n", "documents", st.Ledger.Documents)
	statuses := make([]string, 0, len(st.Ledger.ByStatus))
	for status := range st.Ledger.ByStatus {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Printf("  %-14s %d\n", status, st.Ledger.ByStatus[status])
	}
	if st.Ledger.NeedsReview > 0 {
		bad.Printf("  %-14s %d\n", "needs review", st.Ledger.NeedsReview)
	}
	fmt.Printf("  %-14s %d\n", "queries", st.Ledger.Queries)
	if b := st.Ledger.LastBatch; b != nil {
		dim.Printf("  last batch %s: %d processed, %d failed, %d skipped\n",
			strings.SplitN(b.ID, "-", 2)[0], b.Processed, b.Failed, b.Skipped)
	}
}
