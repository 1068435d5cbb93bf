package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/hwk-1212/rag-eval-project/internal/evaluator"
	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/spf13/cobra"
)

var (
	evalSessionID string
	evalUseLLM    bool
	evalUseRef    bool
	evalRecordIDs []string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score persisted QA records with the LLM and/or reference-metric evaluators",
	Long: `Evaluate runs the evaluation dispatcher over a session's QA records (or a
specific subset named with --record) and prints each record's scores.

Examples:
  ragbench evaluate --session s1 --llm
  ragbench evaluate --session s1 --llm --reference
  ragbench evaluate --session s1 --reference --record qa1 --record qa2`,
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evalSessionID, "session", "", "session ID whose QA records to evaluate (required)")
	evaluateCmd.Flags().BoolVar(&evalUseLLM, "llm", false, "run the LLM dimensional evaluator")
	evaluateCmd.Flags().BoolVar(&evalUseRef, "reference", false, "run the reference-metric evaluator")
	evaluateCmd.Flags().StringArrayVar(&evalRecordIDs, "record", nil, "evaluate only this QA record ID (repeatable; default is every record in the session)")
	_ = evaluateCmd.MarkFlagRequired("session")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if !evalUseLLM && !evalUseRef {
		return exitWith(2, fmt.Errorf("at least one of --llm or --reference is required"))
	}

	a, cleanup, err := buildApp(ctx, configPath)
	if err != nil {
		return exitWith(2, err)
	}
	defer cleanup()

	recordIDs := evalRecordIDs
	if len(recordIDs) == 0 {
		records, err := a.store.ListQARecordsBySession(ctx, evalSessionID)
		if err != nil {
			return exitWith(2, fmt.Errorf("listing session records: %w", err))
		}
		if len(records) == 0 {
			return exitWith(2, fmt.Errorf("session %q has no QA records", evalSessionID))
		}
		for _, r := range records {
			recordIDs = append(recordIDs, r.ID)
		}
	}

	results := a.evalDisp.EvaluateBatch(ctx, recordIDs, evalUseLLM, evalUseRef, nil, a.cfg.Eval.Concurrency)
	printEvalResults(results)

	failures := 0
	for _, r := range results {
		if r.ErrorKind != ragtypes.ErrorKindNone {
			failures++
		}
	}
	if failures > 0 {
		return exitWith(1, fmt.Errorf("%d of %d record(s) failed evaluation", failures, len(results)))
	}
	return nil
}

func printEvalResults(results []evaluator.RecordResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "QA_RECORD\tLLM_OVERALL\tREFERENCE_OVERALL\tERROR")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.QARecordID,
			overallDisplay(r.LLMScore),
			overallDisplay(r.ReferenceScore),
			errorKindDisplay(r.ErrorKind),
		)
	}
	_ = w.Flush()
}

func overallDisplay(score *ragtypes.EvaluationScore) string {
	if score == nil || score.OverallScore == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *score.OverallScore)
}
