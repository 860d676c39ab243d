package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zulandar/signoff/internal/docstore"
	"github.com/zulandar/signoff/internal/telegraph"
)

func newInjectCmd() *cobra.Command {
	var (
		configPath string
		title      string
		path       string
		original   string
		toEmail    string
		toIdentity string
	)

	cmd := &cobra.Command{
		Use:   "inject",
		Short: "Add a document and queue its notification",
		Long: `Adds a document to the local store and queues a "new document" notification.

Nothing is sent from the command line: the notification is delivered by the
running assistant the next time the target (or, without a target, anyone)
greets it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath, true)
			if err != nil {
				return err
			}
			defer a.close()

			orch, err := telegraph.NewOrchestrator(telegraph.OrchestratorOpts{
				Gateway:   telegraph.NewOfflineGateway(),
				Store:     a.store,
				Queue:     a.queue,
				Directory: a.dir,
				Flags:     a.flags,
				Logger:    a.log,
			})
			if err != nil {
				return err
			}

			res, err := orch.Inject(cmd.Context(), telegraph.InjectRequest{
				Input: docstore.Input{
					Title:            title,
					LocalPath:        path,
					OriginalFilename: original,
				},
				NotifyIdentity: toIdentity,
				NotifyEmail:    toEmail,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Injected %s\n", res.Document.DisplayName())
			if res.Queued {
				fmt.Fprintf(out, "Notification %s queued\n", res.NotificationID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "signoff.yaml", "path to Signoff config file")
	cmd.Flags().StringVar(&title, "title", "", "document title (derived from --filename when empty)")
	cmd.Flags().StringVar(&path, "path", "", "path to the document content")
	cmd.Flags().StringVar(&original, "filename", "", "original upload filename")
	cmd.Flags().StringVar(&toEmail, "to-email", "", "notify the reviewer with this email")
	cmd.Flags().StringVar(&toIdentity, "to-identity", "", "notify the reviewer with this directory identity")
	cmd.MarkFlagRequired("path")
	return cmd
}
