package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zulandar/signoff/internal/filename"
)

func newParseCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "parse <filename>...",
		Short: "Show the metadata parsed from document filenames",
		Long:  `Parses names like "Design Spec (01-TEST - 1028340 - 1 - A1).docx" into title, class, number, sheet and revision.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd.OutOrStdout(), args, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per filename")
	return cmd
}

func runParse(out io.Writer, names []string, asJSON bool) error {
	for i, name := range names {
		p := filename.Parse(name)
		if asJSON {
			data, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("parse: %w", err)
			}
			fmt.Fprintln(out, string(data))
			continue
		}

		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%s\n", name)
		fmt.Fprintf(out, "  Title:      %s\n", p.Title)
		if p.IsStructuredFormat {
			fmt.Fprintf(out, "  Class:      %s\n", p.DocClass)
			fmt.Fprintf(out, "  Number:     %s\n", p.DocNumber)
			fmt.Fprintf(out, "  Sheet:      %s\n", p.DocSheet)
			fmt.Fprintf(out, "  Revision:   %s\n", p.DocRevision)
		} else {
			fmt.Fprintf(out, "  Structured: no\n")
		}
		fmt.Fprintf(out, "  Extension:  %s\n", p.FileExtension)
		if p.IsCopyMarker {
			fmt.Fprintf(out, "  Copy:       yes\n")
		}
	}
	return nil
}
