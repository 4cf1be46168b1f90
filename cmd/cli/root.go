// Package cli implements the authenticator command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

// NewRootCommand builds the command tree.
// NewRootCommand 构建命令树
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "authenticator",
		Short: "Review and answer strong customer authentication requests.",
		Long: `authenticator polls the providers of your connections for pending authorizations
and lets you confirm or deny them after a local passcode check.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default ./authenticator.yaml or ~/.authenticator/authenticator.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")

	rootCmd.AddCommand(
		newAuthorizeCommand(opts),
		newWatchCommand(opts),
		newConnectionsCommand(opts),
		newAuditCommand(opts),
		newPasscodeCommand(),
	)
	return rootCmd
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
