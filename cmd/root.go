// Package cmd holds the command line entry points.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "online-docs",
		Short: "Collaborative text editing with conflict-aware merging",
		Long: `online-docs relays concurrent edits between editors, transforms them so every
participant converges, and surfaces overlapping edits as conflicts with ranked
merge strategies.`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newMergeCommand())

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}
