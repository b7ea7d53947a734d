package cli

import (
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/asanatap/internal/config"
	"github.com/roach88/asanatap/internal/output"
	"github.com/roach88/asanatap/internal/store"
)

// StateOptions holds flags shared by the state subcommands.
type StateOptions struct {
	*RootOptions
	Database string
}

// NewStateCommand creates the state command group.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or seed committed watermarks",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", config.DefaultDatabase, "path to SQLite state database")

	cmd.AddCommand(newStateShowCommand(opts))
	cmd.AddCommand(newStateImportCommand(opts))
	return cmd
}

// WatermarkView is the output shape of one committed watermark.
type WatermarkView struct {
	Stream      string `json:"stream"`
	Watermark   string `json:"watermark"`
	RunID       string `json:"run_id"`
	CommittedAt string `json:"committed_at"`
}

func newStateShowCommand(opts *StateOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show committed watermarks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openExisting(opts.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			marks, err := st.Watermarks(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read watermarks", err)
			}

			views := make([]WatermarkView, 0, len(marks))
			for _, m := range marks {
				views = append(views, WatermarkView{
					Stream:      m.Stream,
					Watermark:   m.Value.UTC().Format(time.RFC3339Nano),
					RunID:       m.RunID,
					CommittedAt: m.CommittedAt.UTC().Format(time.RFC3339),
				})
			}

			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return f.Success(views, func(w io.Writer) {
				fmt.Fprintln(w, "STREAM\tWATERMARK\tRUN\tCOMMITTED")
				for _, v := range views {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.Stream, v.Watermark, v.RunID, v.CommittedAt)
				}
			})
		},
	}
}

// ImportView reports the outcome of importing one bookmark.
type ImportView struct {
	Stream    string `json:"stream"`
	Watermark string `json:"watermark"`
	Applied   bool   `json:"applied"`
}

func newStateImportCommand(opts *StateOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <state.json>",
		Short: "Seed watermarks from a Singer state file",
		Long: `Seed watermarks from a Singer state file or message stream.

A bookmark older than the already committed watermark is ignored, so
importing never moves a stream backwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open state file", err)
			}
			defer file.Close()

			marks, err := output.ParseState(file)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to parse state", err)
			}

			st, err := store.Open(opts.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer st.Close()

			names := make([]string, 0, len(marks))
			for name := range marks {
				names = append(names, name)
			}
			slices.Sort(names)

			views := make([]ImportView, 0, len(names))
			for _, name := range names {
				applied, err := st.Commit(cmd.Context(), name, marks[name], "import")
				if err != nil {
					return WrapExitError(ExitFailure, "failed to import watermark", err)
				}
				views = append(views, ImportView{
					Stream:    name,
					Watermark: marks[name].UTC().Format(time.RFC3339Nano),
					Applied:   applied,
				})
			}

			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return f.Success(views, func(w io.Writer) {
				fmt.Fprintln(w, "STREAM\tWATERMARK\tRESULT")
				for _, v := range views {
					result := "imported"
					if !v.Applied {
						result = "kept newer"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", v.Stream, v.Watermark, result)
				}
			})
		},
	}
}

// openExisting opens a state database that must already exist, so a
// mistyped path is reported instead of silently creating a new file.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
