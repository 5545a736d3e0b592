package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"transform-registry/internal/api"
)

func newTransformationsCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transformations",
		Aliases: []string{"tf"},
		Short:   "Define, inspect and remove transformations",
	}
	cmd.AddCommand(newDefineCmd(client))
	cmd.AddCommand(newGetCmd(client))
	cmd.AddCommand(newListCmd(client))
	cmd.AddCommand(newDeleteCmd(client))
	cmd.AddCommand(newMarkProcessedCmd(client))
	cmd.AddCommand(newTypesCmd(client))
	return cmd
}

func newDefineCmd(client *Client) *cobra.Command {
	var (
		typ, jobID, functionText, functionFile string
		inputQuery, targetTable, dependsOn     string
		parameters                             string
		triggerTables                          []string
	)

	cmd := &cobra.Command{
		Use:   "define <id>",
		Short: "Create or replace a transformation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := api.DefineTransformationBody{
				Type:          typ,
				JobID:         jobID,
				FunctionText:  functionText,
				TriggerTables: triggerTables,
			}
			if functionFile != "" {
				data, err := os.ReadFile(functionFile) //nolint:gosec // user-supplied path
				if err != nil {
					return fmt.Errorf("read function file: %w", err)
				}
				body.FunctionText = string(data)
			}
			if cmd.Flags().Changed("input-query") {
				body.InputQuery = &inputQuery
			}
			if cmd.Flags().Changed("target-table") {
				body.TargetTable = &targetTable
			}
			if cmd.Flags().Changed("depends-on") {
				body.DependsOn = &dependsOn
			}
			if parameters != "" {
				if !json.Valid([]byte(parameters)) {
					return fmt.Errorf("--parameters must be valid JSON")
				}
				body.Parameters = json.RawMessage(parameters)
			}

			id, err := client.Define(cmd.Context(), args[0], body)
			if err != nil {
				return err
			}
			return printID(cmd, "defined", id)
		},
	}

	cmd.Flags().StringVar(&typ, "type", "transform", "Transformation type (see 'transformations types')")
	cmd.Flags().StringVar(&jobID, "job", "", "Job id (required)")
	cmd.Flags().StringVar(&functionText, "function", "", "Function definition text")
	cmd.Flags().StringVar(&functionFile, "function-file", "", "Read the function definition from a file")
	cmd.Flags().StringVar(&inputQuery, "input-query", "", "SELECT feeding the function; omit for a function-only transformation")
	cmd.Flags().StringVar(&targetTable, "target-table", "", "Table the output is materialized into")
	cmd.Flags().StringSliceVar(&triggerTables, "trigger-table", nil, "Table whose change triggers this transformation (repeatable)")
	cmd.Flags().StringVar(&dependsOn, "depends-on", "", "Id of the parent transformation in the same job")
	cmd.Flags().StringVar(&parameters, "parameters", "", "Opaque JSON parameters")
	cmd.MarkFlagsMutuallyExclusive("function", "function-file")
	cmd.MarkFlagsOneRequired("function", "function-file")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func newGetCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one transformation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := client.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), t)
			}
			return PrintDetail(cmd.OutOrStdout(), transformationDetailKeys, transformationDetail(*t))
		},
	}
}

func newListCmd(client *Client) *cobra.Command {
	var (
		jobID      string
		maxResults int
		pageToken  string
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transformations ordered by job and id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var items []api.Transformation
			token := pageToken
			for {
				page, err := client.List(cmd.Context(), jobID, maxResults, token)
				if err != nil {
					return err
				}
				items = append(items, page.Transformations...)
				token = page.NextPageToken
				if !all || token == "" {
					break
				}
			}

			out := cmd.OutOrStdout()
			switch {
			case getOutputFormat(cmd) == "json":
				return PrintJSON(out, api.ListTransformationsResponse{Transformations: items, NextPageToken: token})
			case isQuiet(cmd):
				for _, t := range items {
					_, _ = fmt.Fprintln(out, t.ID)
				}
				return nil
			}
			rows := make([][]string, len(items))
			for i, t := range items {
				rows[i] = []string{
					t.ID, t.JobID, t.Type, optional(t.DependsOn), joinOrDash(t.TriggerTables),
					strconv.FormatBool(t.Materialized), optionalTime(t.ProcessDate),
				}
			}
			if err := PrintTable(out, []string{"id", "job_id", "type", "depends_on", "trigger_tables", "materialized", "process_date"}, rows); err != nil {
				return err
			}
			if token != "" {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "More results: --page-token %s\n", token)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&jobID, "job", "", "Only list this job's transformations")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "Page size (server default when 0)")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Continue from a previous page")
	cmd.Flags().BoolVar(&all, "all", false, "Follow page tokens until exhausted")
	return cmd
}

func newDeleteCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transformation nothing depends on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := client.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printID(cmd, "deleted", id)
		},
	}
}

func newMarkProcessedCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "mark-processed <id>",
		Short: "Record that a transformation has just run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.MarkProcessed(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printID(cmd, "processed", args[0])
		},
	}
}

func newTypesCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the allowed transformation types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			types, err := client.Types(cmd.Context())
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), api.TypesResponse{Types: types})
			}
			for _, t := range types {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func printID(cmd *cobra.Command, status, id string) error {
	out := cmd.OutOrStdout()
	switch {
	case getOutputFormat(cmd) == "json":
		return PrintJSON(out, map[string]string{"status": status, "id": id})
	case isQuiet(cmd):
		_, err := fmt.Fprintln(out, id)
		return err
	default:
		_, err := fmt.Fprintf(out, "Transformation %q %s\n", id, status)
		return err
	}
}

var transformationDetailKeys = []string{
	"id", "job_id", "type", "function_name", "input_query", "target_table", "trigger_tables",
	"depends_on", "parameters", "output_expression", "materialized", "function_only",
	"creation_date", "process_date",
}

func transformationDetail(t api.Transformation) map[string]string {
	params := "-"
	if len(t.Parameters) > 0 && string(t.Parameters) != "null" {
		params = string(t.Parameters)
	}
	created := t.CreationDate
	return map[string]string{
		"id":                t.ID,
		"job_id":            t.JobID,
		"type":              t.Type,
		"function_name":     optional(t.FunctionName),
		"input_query":       optional(t.InputQuery),
		"target_table":      optional(t.TargetTable),
		"trigger_tables":    joinOrDash(t.TriggerTables),
		"depends_on":        optional(t.DependsOn),
		"parameters":        params,
		"output_expression": optional(t.OutputExpression),
		"materialized":      strconv.FormatBool(t.Materialized),
		"function_only":     strconv.FormatBool(t.FunctionOnly),
		"creation_date":     optionalTime(&created),
		"process_date":      optionalTime(t.ProcessDate),
	}
}
