package main

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/enrich-cli/internal/pipeline"
)

var (
	planOpts  enrichOptions
	planField string
	planRow   int
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the directive a field would receive for one row",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runPlan(cmd.Context(), cmd.OutOrStdout(), planOpts, planField, planRow)
	},
}

func runPlan(ctx context.Context, out io.Writer, opts enrichOptions, field string, rowIndex int) error {
	b, err := loadBatch(ctx, opts)
	if err != nil {
		return err
	}
	if rowIndex < 0 || rowIndex >= len(b.Rows) {
		return eris.Errorf("plan: row %d out of range (file has %d rows)", rowIndex, len(b.Rows))
	}

	for _, f := range b.Fields {
		if f.Name != field {
			continue
		}
		plan := pipeline.BuildPlan(pipeline.PlanInput{
			Field:    f,
			Row:      b.Rows[rowIndex],
			RowIndex: rowIndex,
			AllRows:  b.Rows,
			Context:  b.Context,
		})
		return printJSON(out, plan)
	}
	return eris.Errorf("plan: field %q not defined", field)
}

func init() {
	f := planCmd.Flags()
	f.StringVar(&planOpts.RowsPath, "rows", "", "row file (csv, tsv, xlsx, json, jsonl)")
	f.StringVar(&planOpts.FieldsPath, "fields", "", "field definition file (yaml or json)")
	f.StringVar(&planOpts.Sheet, "sheet", "", "xlsx sheet name (default first sheet)")
	f.StringVar(&planField, "field", "", "field to plan")
	f.IntVar(&planRow, "row", 0, "zero-based row index")
	_ = planCmd.MarkFlagRequired("rows")
	_ = planCmd.MarkFlagRequired("fields")
	_ = planCmd.MarkFlagRequired("field")
	rootCmd.AddCommand(planCmd)
}
