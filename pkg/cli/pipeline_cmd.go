package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"transform-registry/internal/api"
)

func newPipelineCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Resolve update pipelines and inspect job graphs",
	}
	cmd.AddCommand(newResolveCmd(client))
	cmd.AddCommand(newOrderCmd(client))
	cmd.AddCommand(newGraphCmd(client))
	return cmd
}

func newResolveCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <table>",
		Short: "Show what must re-run after a table changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := client.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(out, p)
			}
			if !p.Matched {
				_, err := fmt.Fprintf(out, "No transformation is triggered by %q\n", p.TriggerTable)
				return err
			}
			return PrintTable(out, []string{"job_id", "depth", "id", "ancestors", "target_table"}, pipelineRows(p))
		},
	}
}

func pipelineRows(p *api.UpdatePipeline) [][]string {
	var rows [][]string
	for _, plan := range p.Plans {
		for _, s := range plan.Transformations {
			rows = append(rows, []string{
				plan.JobID, strconv.Itoa(s.Depth), s.ID,
				joinOrDash(s.Ancestors), optional(s.TargetTable),
			})
		}
	}
	return rows
}

func newOrderCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "order <job_id>",
		Short: "List a job's transformations in dependency order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := client.JobOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), api.JobOrderResponse{JobID: args[0], Order: order})
			}
			if len(order) == 0 {
				return nil
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(order, "\n"))
			return err
		},
	}
}

func newGraphCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "graph <job_id>",
		Short: "Print a job's dependency forest in Graphviz DOT format",
		Long:  "Print a job's dependency forest in Graphviz DOT format. Pipe it to 'dot -Tsvg' to render.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dot, err := client.JobGraph(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(dot)
			return err
		},
	}
}
