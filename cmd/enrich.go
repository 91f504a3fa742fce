package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/ingest"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/pipeline"
)

type enrichOptions struct {
	RowsPath   string
	FieldsPath string
	Sheet      string
	Limit      int
	Offline    bool
	DryRun     bool
}

var enrichOpts enrichOptions

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a file of rows and persist the session",
	Long: `Reads rows from a CSV, TSV, XLSX, JSON or JSON Lines file and field
definitions from YAML or JSON, enriches every row in dependency order, and
stores the session. Each finished row is printed to stdout as a JSON line,
followed by a session_complete line.

Examples:
  # Offline run with the stub extractor (no API keys needed)
  enrich-cli enrich --rows leads.csv --fields fields.yaml --offline

  # Validate inputs and print the field order without enriching
  enrich-cli enrich --rows leads.xlsx --sheet Leads --fields fields.json --dry-run`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runEnrich(cmd.Context(), cmd.OutOrStdout(), enrichOpts)
	},
}

// loadBatch reads the row and field files into a batch.
func loadBatch(ctx context.Context, opts enrichOptions) (pipeline.Batch, error) {
	tbl, err := ingest.ReadRows(ctx, opts.RowsPath, ingest.Options{Limit: opts.Limit, Sheet: opts.Sheet})
	if err != nil {
		return pipeline.Batch{}, eris.Wrap(err, "enrich: read rows")
	}
	ff, err := ingest.LoadFields(opts.FieldsPath)
	if err != nil {
		return pipeline.Batch{}, eris.Wrap(err, "enrich: read fields")
	}

	ctxCfg := cfg.Context
	if ff.Context != nil {
		ctxCfg = *ff.Context
	}

	zap.L().Info("inputs loaded",
		zap.Int("rows", len(tbl.Rows)),
		zap.Int("columns", len(tbl.Columns)),
		zap.Int("fields", len(ff.Fields)),
	)
	return pipeline.Batch{Rows: tbl.Rows, Fields: ff.Fields, Context: ctxCfg}, nil
}

func runEnrich(ctx context.Context, out io.Writer, opts enrichOptions) error {
	b, err := loadBatch(ctx, opts)
	if err != nil {
		return err
	}

	if opts.DryRun {
		order, err := pipeline.OrderFields(b.Fields, b.Rows, cfg.PipelineOptions().Limits)
		if err != nil {
			return err
		}
		names := make([]string, len(order))
		for i, f := range order {
			names[i] = f.Name
		}
		return writeJSONLine(out, map[string]any{"rows": len(b.Rows), "fieldOrder": names})
	}

	env, err := initEnv(ctx, config.ModeEnrich, opts.Offline)
	if err != nil {
		return err
	}
	defer env.Close()

	sr, err := env.Runner.Start(ctx, b)
	if err != nil {
		return err
	}
	for ev := range sr.Events() {
		if err := writeJSONLine(out, ev); err != nil {
			return err
		}
	}

	m, runErr := sr.Wait()
	sess := sr.Session()
	final := sessionCompleteLine{Type: model.EventSessionComplete, Session: sess}
	if runErr != nil {
		final.Error = runErr.Error()
	} else {
		final.Metrics = &m
	}
	if err := writeJSONLine(out, final); err != nil {
		return err
	}
	return runErr
}

type sessionCompleteLine struct {
	Type    model.RowEventType `json:"type"`
	Session model.Session      `json:"session"`
	Metrics *model.Metrics     `json:"metrics,omitempty"`
	Error   string             `json:"error,omitempty"`
}

func writeJSONLine(w io.Writer, v any) error {
	return eris.Wrap(json.NewEncoder(w).Encode(v), "write output")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "write output")
}

func init() {
	f := enrichCmd.Flags()
	f.StringVar(&enrichOpts.RowsPath, "rows", "", "row file (csv, tsv, xlsx, json, jsonl)")
	f.StringVar(&enrichOpts.FieldsPath, "fields", "", "field definition file (yaml or json)")
	f.StringVar(&enrichOpts.Sheet, "sheet", "", "xlsx sheet name (default first sheet)")
	f.IntVar(&enrichOpts.Limit, "limit", 0, "max rows to enrich (0 = all)")
	f.BoolVar(&enrichOpts.Offline, "offline", false, "use the stub extractor")
	f.BoolVar(&enrichOpts.DryRun, "dry-run", false, "validate inputs and print field order only")
	_ = enrichCmd.MarkFlagRequired("rows")
	_ = enrichCmd.MarkFlagRequired("fields")
	rootCmd.AddCommand(enrichCmd)
}

