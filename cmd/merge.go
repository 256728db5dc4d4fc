package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/serroba/online-docs/internal/conflict"
	"github.com/serroba/online-docs/internal/merge"
	"github.com/serroba/online-docs/internal/ot"
	"github.com/serroba/online-docs/internal/ws"
	"github.com/spf13/cobra"
)

var errNoOperations = errors.New("conflict file lists no operations")

// conflictFile describes a conflict offline: the content before the first
// operation, the operations in the order they were applied, and the incoming
// one last, authored against base.
type conflictFile struct {
	DocID      string                `json:"docId"`
	Base       string                `json:"base"`
	Operations []ws.OperationPayload `json:"operations"`
}

func newMergeCommand() *cobra.Command {
	var asJSON bool

	mergeCmd := &cobra.Command{
		Use:   "merge <conflict.json>",
		Short: "Rank merge strategies for a conflict",
		Long: `Read a conflict from a JSON file ({"base": ..., "operations": [...]}), classify it
and print every merge strategy ranked by confidence.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			info, err := parseConflict(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			strategies := merge.Evaluate(info, info.BaseContent)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")

				return enc.Encode(ws.NewConflictPayload(info, strategies))
			}

			return printStrategies(cmd.OutOrStdout(), info, strategies)
		},
	}

	mergeCmd.Flags().BoolVar(&asJSON, "json", false, "Print the conflict and strategies as JSON")

	return mergeCmd
}

func parseConflict(data []byte) (conflict.Info, error) {
	var file conflictFile
	if err := json.Unmarshal(data, &file); err != nil {
		return conflict.Info{}, err
	}

	if len(file.Operations) == 0 {
		return conflict.Info{}, errNoOperations
	}

	ops := make([]ot.Operation, 0, len(file.Operations))

	for i, p := range file.Operations {
		op, err := p.Operation()
		if err != nil {
			return conflict.Info{}, fmt.Errorf("operation %d: %w", i, err)
		}

		ops = append(ops, op)
	}

	last := len(ops) - 1

	return conflict.NewInfo(file.DocID, ops[last], ops[:last], file.Base, time.Now()), nil
}

func printStrategies(w io.Writer, info conflict.Info, strategies []merge.Strategy) error {
	fmt.Fprintf(w, "%s conflict (%s severity) between %s\n\n",
		info.Kind, info.Severity, strings.Join(info.Authors(), ", "))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTRATEGY\tCONFIDENCE\tPREVIEW")

	for i, s := range strategies {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%q\n", i, s.Name, s.Confidence, s.PreviewContent)
	}

	return tw.Flush()
}
