package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/hwk-1212/rag-eval-project/internal/ragtypes"
	"github.com/spf13/cobra"
)

var sessionTitle string

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage evaluation sessions",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new session",
	RunE:  runSessionCreate,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE:  runSessionList,
}

func init() {
	sessionCreateCmd.Flags().StringVar(&sessionTitle, "title", "", "session title (required)")
	_ = sessionCreateCmd.MarkFlagRequired("title")
	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionListCmd)
}

func runSessionCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, cleanup, err := buildApp(ctx, configPath)
	if err != nil {
		return exitWith(2, err)
	}
	defer cleanup()

	sess := &ragtypes.Session{ID: uuid.NewString(), Title: sessionTitle}
	if err := a.store.CreateSession(ctx, sess); err != nil {
		return exitWith(2, fmt.Errorf("creating session: %w", err))
	}

	fmt.Println(sess.ID)
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, cleanup, err := buildApp(ctx, configPath)
	if err != nil {
		return exitWith(2, err)
	}
	defer cleanup()

	sessions, err := a.store.ListSessions(ctx)
	if err != nil {
		return exitWith(2, fmt.Errorf("listing sessions: %w", err))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCREATED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Title, s.CreateTime.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
	return nil
}
