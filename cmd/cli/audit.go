package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/authenticator/internal/infrastructure/audit"
	"github.com/turtacn/authenticator/internal/interfaces/terminal"
)

type auditReader interface {
	Recent(ctx context.Context, limit int) ([]audit.AuditRecord, error)
}

func newAuditCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the local decision audit trail",
	}

	var limit int
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Print the newest audit events stored locally",
		Long: `Print the newest audit events stored in the local database.
Events are only stored locally while kafka.brokers is empty.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()
			return printRecentAudit(cmd.Context(), app.auditLog, limit, cmd.OutOrStdout())
		},
	}
	recentCmd.Flags().IntVar(&limit, "limit", 20, "number of events")

	cmd.AddCommand(recentCmd)
	return cmd
}

func printRecentAudit(ctx context.Context, reader auditReader, limit int, out io.Writer) error {
	if limit <= 0 {
		limit = 20
	}
	records, err := reader.Recent(ctx, limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEVENT\tCONNECTION\tAUTHORIZATION\tMETHOD\tSTATUS\tRESULT")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.UTC().Format(time.RFC3339), r.EventType, r.ConnectionID, r.AuthorizationID, r.AuthMethod, r.Status, r.ResultCode)
	}
	return w.Flush()
}

func newPasscodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "passcode-hash",
		Short: "Read a passcode and print the bcrypt hash for passcode.hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			console := terminal.NewConsole(cmd.InOrStdin(), cmd.ErrOrStderr())
			passcode, err := console.ReadSecret(cmd.Context(), "New passcode: ")
			if err != nil {
				return err
			}
			hash, err := terminal.HashPasscode(passcode)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}
