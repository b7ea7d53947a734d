package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/asanatap/internal/engine"
)

// StreamView describes one catalog stream.
type StreamView struct {
	Name           string   `json:"name"`
	ReplicationKey string   `json:"replication_key"`
	Scope          string   `json:"scope"`
	Hierarchical   bool     `json:"hierarchical"`
	Fields         []string `json:"fields"`
}

// NewStreamsCommand creates the streams command.
func NewStreamsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "streams",
		Short: "List replicable streams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var views []StreamView
			for _, s := range engine.Catalog() {
				scope := "workspace"
				if s.Scope == engine.ScopeProject {
					scope = "project"
				}
				views = append(views, StreamView{
					Name:           s.Name,
					ReplicationKey: s.ReplicationKey,
					Scope:          scope,
					Hierarchical:   s.Hierarchical,
					Fields:         s.Fields,
				})
			}

			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Success(views, func(w io.Writer) {
				fmt.Fprintln(w, "STREAM\tKEY\tSCOPE\tSUBTASKS\tFIELDS")
				for _, v := range views {
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
						v.Name, v.ReplicationKey, v.Scope, v.Hierarchical, strings.Join(v.Fields, ","))
				}
			})
		},
	}
}
