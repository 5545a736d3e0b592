package cli

import (
	"time"

	"github.com/spf13/cobra"
)

func newAuditCmd(client *Client) *cobra.Command {
	var (
		transformationID, action string
		maxResults               int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent registry mutations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := client.Audit(cmd.Context(), transformationID, action, maxResults)
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), page)
			}
			rows := make([][]string, len(page.Entries))
			for i, e := range page.Entries {
				rows[i] = []string{
					e.CreatedAt.Format(time.RFC3339), e.Action, e.TransformationID,
					optional(&e.JobID), optional(&e.RequestID),
				}
			}
			return PrintTable(cmd.OutOrStdout(), []string{"created_at", "action", "transformation_id", "job_id", "request_id"}, rows)
		},
	}

	cmd.Flags().StringVar(&transformationID, "transformation", "", "Only entries for this transformation id")
	cmd.Flags().StringVar(&action, "action", "", "Only entries with this action")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "Page size (server default when 0)")
	return cmd
}
