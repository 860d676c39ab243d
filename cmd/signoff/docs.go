package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/zulandar/signoff/internal/db"
	"github.com/zulandar/signoff/internal/models"
)

func newDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List and decide documents in the local store",
	}

	cmd.AddCommand(newDocsListCmd())
	cmd.AddCommand(newDocsDecideCmd("approve", models.StateApproved))
	cmd.AddCommand(newDocsDecideCmd("reject", models.StateRejected))
	return cmd
}

func newDocsListCmd() *cobra.Command {
	var (
		configPath string
		state      string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath, false)
			if err != nil {
				return err
			}
			defer a.close()

			docs := a.store.ListAll()
			if state != "" {
				canonical := models.NormalizeState(state)
				if !models.ValidState(canonical) {
					return fmt.Errorf("docs: unknown state %q", state)
				}
				docs = a.store.ListByState(canonical)
			}
			writeDocTable(cmd.OutOrStdout(), docs, terminalWidth())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "signoff.yaml", "path to Signoff config file")
	cmd.Flags().StringVar(&state, "state", "", "only list documents in this state (pending, approved, rejected)")
	return cmd
}

func newDocsDecideCmd(verb, state string) *cobra.Command {
	var (
		configPath string
		actor      string
	)

	cmd := &cobra.Command{
		Use:   verb + " <id>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath, true)
			if err != nil {
				return err
			}
			defer a.close()

			id := strings.ToUpper(strings.TrimSpace(args[0]))
			doc, ok := a.store.Get(id)
			if !ok {
				return fmt.Errorf("docs: %s %s: unknown document", verb, id)
			}
			if !a.store.SetState(id, state) {
				return fmt.Errorf("docs: %s %s: could not save the new state, see the log", verb, id)
			}
			if err := db.RecordApproval(a.db, &models.ApprovalEvent{
				DocumentID: id,
				State:      state,
				ActorName:  actor,
			}); err != nil {
				a.log.Warn("docs: record approval failed", zap.String("document", id), zap.Error(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s.\n", doc.DisplayName(), state)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "signoff.yaml", "path to Signoff config file")
	cmd.Flags().StringVar(&actor, "as", "cli", "name recorded in the approval history")
	return cmd
}

// terminalWidth returns the stdout width, or 100 when stdout is not a
// terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 100
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return 100
	}
	return w
}

// writeDocTable prints id, state and title columns, clipping the title to
// fit width.
func writeDocTable(out io.Writer, docs []models.Document, width int) {
	if len(docs) == 0 {
		fmt.Fprintln(out, "No documents.")
		return
	}

	idW := len("ID")
	for _, d := range docs {
		if len(d.ID) > idW {
			idW = len(d.ID)
		}
	}
	const stateW = len(models.StatePendingApproval)
	titleW := width - idW - stateW - 4
	if titleW < 10 {
		titleW = 10
	}

	fmt.Fprintf(out, "%-*s  %-*s  %s\n", idW, "ID", stateW, "STATE", "TITLE")
	for _, d := range docs {
		title := d.Title
		if id := d.Identifier(); id != "" {
			title += " (" + id + ")"
		}
		fmt.Fprintf(out, "%-*s  %-*s  %s\n", idW, d.ID, stateW, d.State, clipRunes(title, titleW))
	}
}

func clipRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
