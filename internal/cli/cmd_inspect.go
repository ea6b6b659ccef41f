package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cipherpoc/cipherpoc/internal/inspect"
	"github.com/cipherpoc/cipherpoc/internal/storage"
)

func newInspectCommand(deps commandDeps) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Report cipher settings, page statistics, schema and row counts",
		Example: "  cipherpoc inspect\n" +
			"  cipherpoc inspect --out ./inspect.json",
		Args: noPositionalArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(cmd, deps)
			if err != nil {
				return mapCommandError(err)
			}
			defer sess.Close()

			if err := requireExistingDatabase(sess.cfg.Database.Path); err != nil {
				return mapCommandError(err)
			}
			store, err := storage.Open(cmd.Context(), sess.storageOptions())
			if err != nil {
				return mapCommandError(err)
			}
			defer store.Close()

			report, err := inspect.Collect(cmd.Context(), store, store.Path(), time.Now())
			if err != nil {
				return mapCommandError(err)
			}
			report.Version = map[string]any{
				"version":    deps.build.Version,
				"commit":     deps.build.Commit,
				"build_time": deps.build.BuildTime,
			}

			switch {
			case outputPath != "":
				if err := inspect.WriteReport(outputPath, report); err != nil {
					return mapCommandError(err)
				}
				_, err = fmt.Fprintf(deps.out, "wrote inspect report to %s\n", outputPath)
				return mapCommandError(err)
			case deps.globals.JSON:
				return mapCommandError(printJSON(deps.out, report))
			default:
				return mapCommandError(inspect.RenderText(deps.out, report))
			}
		},
	}

	cmd.Flags().StringVar(&outputPath, "out", "", "Write the report as JSON to this path")
	return cmd
}
