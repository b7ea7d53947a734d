package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/asanatap/internal/config"
	"github.com/roach88/asanatap/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// RunView is the output shape of one recorded pass.
type RunView struct {
	ID          string `json:"id"`
	Stream      string `json:"stream"`
	Status      string `json:"status"`
	StartedAt   string `json:"started_at"`
	FinishedAt  string `json:"finished_at,omitempty"`
	Observed    int64  `json:"observed"`
	Emitted     int64  `json:"emitted"`
	Skipped     int64  `json:"skipped"`
	Duplicates  int64  `json:"duplicates"`
	FailedNodes int64  `json:"failed_nodes"`
	Watermark   string `json:"watermark,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent stream passes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openExisting(opts.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.Runs(cmd.Context(), opts.Limit)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read runs", err)
			}

			views := make([]RunView, 0, len(runs))
			for _, r := range runs {
				views = append(views, runView(r))
			}

			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return f.Success(views, func(w io.Writer) {
				fmt.Fprintln(w, "RUN\tSTREAM\tSTATUS\tSTARTED\tEMITTED\tSKIPPED\tFAILED NODES\tWATERMARK")
				for _, v := range views {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
						v.ID, v.Stream, v.Status, v.StartedAt, v.Emitted, v.Skipped, v.FailedNodes, v.Watermark)
				}
			})
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", config.DefaultDatabase, "path to SQLite state database")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of runs to show (0 for all)")

	return cmd
}

func runView(r store.Run) RunView {
	v := RunView{
		ID:          r.ID,
		Stream:      r.Stream,
		Status:      string(r.Status),
		StartedAt:   r.StartedAt.UTC().Format(time.RFC3339),
		Observed:    r.Stats.Observed,
		Emitted:     r.Stats.Emitted,
		Skipped:     r.Stats.Skipped,
		Duplicates:  r.Stats.Duplicates,
		FailedNodes: r.Stats.FailedNodes,
		Error:       r.Error,
	}
	if !r.FinishedAt.IsZero() {
		v.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
	}
	if !r.Watermark.IsZero() {
		v.Watermark = r.Watermark.UTC().Format(time.RFC3339Nano)
	}
	return v
}
