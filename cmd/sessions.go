package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-agent/internal/model"
	"github.com/sells-group/outreach-agent/internal/store"
)

var (
	sessionsClientTag string
	sessionsStatus    string
	sessionsLimit     int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		sessions, err := e.sessions.List(cmd.Context(), store.SessionFilter{
			ClientTag: sessionsClientTag,
			Status:    model.SessionStatus(sessionsStatus),
			Limit:     sessionsLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "UUID\tTITLE\tCLIENT\tSTATUS\tMSGS AT\tCOST")
		for _, s := range sessions {
			last := "-"
			if s.LastMessageAt != nil {
				last = s.LastMessageAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t$%.4f\n",
				s.UUID, s.Title, s.ClientTag, s.Status, last, s.CostUSD)
		}
		return w.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <uuid>",
	Short: "Show one session with its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		sess, err := e.sessions.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if sess == nil {
			return eris.Errorf("session not found: %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sess)
	},
}

var sessionsArchiveCmd = &cobra.Command{
	Use:   "archive <uuid>",
	Short: "Archive a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		sess, err := e.sessions.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if sess == nil {
			return eris.Errorf("session not found: %s", args[0])
		}
		if err := e.sessions.Archive(cmd.Context(), sess.ID); err != nil {
			return err
		}
		fmt.Printf("archived %s\n", sess.UUID)
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().StringVar(&sessionsClientTag, "client-tag", "", "filter by client tag")
	sessionsListCmd.Flags().StringVar(&sessionsStatus, "status", "", "filter by status (active|archived)")
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 50, "max sessions to list")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsArchiveCmd)
	rootCmd.AddCommand(sessionsCmd)
}
