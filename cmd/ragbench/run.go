package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/hwk-1212/rag-eval-project/internal/store"
	"github.com/hwk-1212/rag-eval-project/internal/technique"
	"github.com/spf13/cobra"
)

var (
	runSessionID  string
	runQuery      string
	runTechniques []string
	runTopK       int
	runDocIDs     []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fan a query out across one or more RAG techniques",
	Long: `Run invokes the fan-out dispatcher for one query against the named
techniques and prints a table of technique, answer preview, timing, and
error kind.

Examples:
  ragbench run --session s1 --query "What is the capital of France?" --techniques baseline,fusion
  ragbench run --session s1 --query "..." --techniques hyde --top-k 3 --doc doc1 --doc doc2`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runSessionID, "session", "", "session ID to persist results under (required)")
	runCmd.Flags().StringVar(&runQuery, "query", "", "the query text (required)")
	runCmd.Flags().StringSliceVar(&runTechniques, "techniques", nil, "comma-separated technique names (required)")
	runCmd.Flags().IntVar(&runTopK, "top-k", 0, "final context size (0 uses the configured default)")
	runCmd.Flags().StringArrayVar(&runDocIDs, "doc", nil, "restrict retrieval to this document ID (repeatable)")
	_ = runCmd.MarkFlagRequired("session")
	_ = runCmd.MarkFlagRequired("query")
	_ = runCmd.MarkFlagRequired("techniques")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := validateTechniqueNames(runTechniques); err != nil {
		return exitWith(2, err)
	}

	a, cleanup, err := buildApp(ctx, configPath)
	if err != nil {
		return exitWith(2, err)
	}
	defer cleanup()

	if _, err := a.store.GetSession(ctx, runSessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return exitWith(2, fmt.Errorf("session %q not found", runSessionID))
		}
		return exitWith(2, fmt.Errorf("looking up session: %w", err))
	}

	cfg := ragtypes.DefaultRAGConfig()
	if runTopK > 0 {
		cfg.TopK = runTopK
	} else {
		cfg.TopK = a.cfg.RAG.TopK
	}
	cfg.MaxConcurrency = a.cfg.RAG.MaxConcurrency
	cfg.PerTechniqueTimeout = a.cfg.RAG.PerTechniqueTimeout.Duration()

	res := a.dispatch.Run(ctx, runSessionID, runQuery, runDocIDs, runTechniques, cfg)
	printRunResults(res.Results)

	if res.PersistenceFailed {
		fmt.Fprintln(os.Stderr, "warning: persisting results failed; results above were not saved")
	}

	failures := 0
	for _, r := range res.Results {
		if r.ErrorKind != ragtypes.ErrorKindNone {
			failures++
		}
	}
	if failures == len(res.Results) && failures > 0 {
		return exitWith(1, fmt.Errorf("all %d technique(s) failed", failures))
	}
	if failures > 0 {
		return exitWith(1, fmt.Errorf("%d of %d technique(s) failed", failures, len(res.Results)))
	}
	return nil
}

func validateTechniqueNames(names []string) error {
	known := make(map[string]struct{})
	for _, n := range technique.Available() {
		known[n] = struct{}{}
	}
	var unknown []string
	for _, n := range names {
		if _, ok := known[n]; !ok {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown technique(s): %s", strings.Join(unknown, ", "))
	}
	return nil
}

func printRunResults(results []ragtypes.TechniqueResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TECHNIQUE\tANSWER\tRETRIEVAL\tGENERATION\tTOTAL\tERROR")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.TechniqueName,
			truncate(strings.ReplaceAll(r.AnswerText, "\n", " "), 60),
			r.RetrievalTime.Round(time.Millisecond),
			r.GenerationTime.Round(time.Millisecond),
			r.TotalTime.Round(time.Millisecond),
			errorKindDisplay(r.ErrorKind),
		)
	}
	_ = w.Flush()
}

func errorKindDisplay(kind ragtypes.ErrorKind) string {
	if kind == ragtypes.ErrorKindNone {
		return "-"
	}
	return string(kind)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
