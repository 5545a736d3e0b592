package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type applyResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func newApplyCmd(client *Client) *cobra.Command {
	var (
		file   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Define every transformation of a YAML manifest",
		Long: "Reads a manifest and defines its transformations, parents before their dependents. " +
			"Stops at the first rejected definition.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := LoadManifest(file)
			if err != nil {
				return err
			}
			entries, err := m.ApplyOrder()
			if err != nil {
				return err
			}

			results := make([]applyResult, 0, len(entries))
			var failure error
			for _, e := range entries {
				if dryRun {
					results = append(results, applyResult{ID: e.ID, Status: "planned"})
					continue
				}
				body, err := e.Body()
				if err == nil {
					_, err = client.Define(cmd.Context(), e.ID, body)
				}
				if err != nil {
					results = append(results, applyResult{ID: e.ID, Status: "failed", Error: err.Error()})
					failure = fmt.Errorf("apply %q: %w", e.ID, err)
					break
				}
				results = append(results, applyResult{ID: e.ID, Status: "defined"})
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				if err := PrintJSON(out, results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					if r.Error != "" {
						_, _ = fmt.Fprintf(out, "  %s %s: %s\n", r.Status, r.ID, r.Error)
					} else {
						_, _ = fmt.Fprintf(out, "  %s %s\n", r.Status, r.ID)
					}
				}
				if !dryRun {
					_, _ = fmt.Fprintf(out, "\nApply complete: %d of %d defined.\n", countDefined(results), len(entries))
				}
			}
			return failure
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Manifest file (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only print the order definitions would be applied in")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func countDefined(results []applyResult) int {
	n := 0
	for _, r := range results {
		if r.Status == "defined" {
			n++
		}
	}
	return n
}
