package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/pipeline"
	"github.com/sells-group/enrich-cli/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored enrichment sessions",
}

// openStore validates the store settings and opens it.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate(config.ModeStore); err != nil {
		return nil, err
	}
	return initStore(ctx)
}

// -- sessions show --

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show session metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		return showSession(ctx, cmd.OutOrStdout(), st, args[0])
	},
}

func showSession(ctx context.Context, out io.Writer, st store.Store, id string) error {
	sess, err := st.GetSessionMetadata(ctx, id)
	if err != nil {
		return eris.Wrap(err, "sessions show")
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", sess.ID)
	fmt.Fprintf(w, "Status:\t%s\n", sess.Status)
	fmt.Fprintf(w, "Progress:\t%d/%d\n", sess.ProcessedRows, sess.TotalRows)
	fmt.Fprintf(w, "Started:\t%s\n", sess.StartedAt.Format(time.RFC3339))
	return w.Flush()
}

// -- sessions results --

var (
	resultsOffset int
	resultsLimit  int
)

var sessionsResultsCmd = &cobra.Command{
	Use:   "results <session-id>",
	Short: "Print stored row results as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := st.GetSessionMetadata(ctx, args[0]); err != nil {
			return eris.Wrap(err, "sessions results")
		}
		results, err := st.GetSessionResults(ctx, args[0], store.Page{Offset: resultsOffset, Limit: resultsLimit})
		if err != nil {
			return eris.Wrap(err, "sessions results")
		}
		return printJSON(cmd.OutOrStdout(), results)
	},
}

// -- sessions metrics --

var metricsRecompute bool

var sessionsMetricsCmd = &cobra.Command{
	Use:   "metrics <session-id>",
	Short: "Print session metrics, computing them if none are stored",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		// Metrics only touch the store, so the runner needs no orchestrator.
		r := pipeline.NewRunner(st, nil)
		if metricsRecompute {
			if _, err := st.GetSessionMetadata(ctx, args[0]); err != nil {
				return eris.Wrap(err, "sessions metrics")
			}
			m, err := r.RecomputeMetrics(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), m)
		}
		m, err := r.Metrics(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "sessions metrics")
		}
		return printJSON(cmd.OutOrStdout(), m)
	},
}

func init() {
	sessionsResultsCmd.Flags().IntVar(&resultsOffset, "offset", 0, "skip this many rows")
	sessionsResultsCmd.Flags().IntVar(&resultsLimit, "limit", 0, "max rows to print (0 = all)")
	sessionsMetricsCmd.Flags().BoolVar(&metricsRecompute, "recompute", false, "recompute from stored results and save")

	sessionsCmd.AddCommand(sessionsShowCmd, sessionsResultsCmd, sessionsMetricsCmd)
	rootCmd.AddCommand(sessionsCmd)
}
