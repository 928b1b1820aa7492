// Package main provides the textgrad CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const version = "v0.0.1-dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "textgrad",
		Short: "Optimize text with textual gradients",
		Long: `textgrad builds a computation graph of language-model calls, asks a model
for natural-language feedback on every trainable variable, and rewrites those
variables with Textual Gradient Descent.`,
		SilenceUsage: true,
	}
	root.AddCommand(newSolveCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "textgrad %s\n", version)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
