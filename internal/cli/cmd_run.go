package cli

import (
	"github.com/spf13/cobra"

	"github.com/cipherpoc/cipherpoc/internal/demo"
)

var openDatabaseFn demo.Opener = demo.OpenStore

func newRunCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Open the database, insert one entry and print every entry",
		Example: "  cipherpoc run\n" +
			"  cipherpoc --db ./entries.db --json run",
		Args: noPositionalArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, deps)
		},
	}
}

func runDemo(cmd *cobra.Command, deps commandDeps) error {
	sess, err := newSession(cmd, deps)
	if err != nil {
		return mapCommandError(err)
	}
	defer sess.Close()

	runner := demo.NewRunner(deps.out, sess.logger)
	runner.Open = openDatabaseFn
	if deps.globals.JSON {
		runner.Format = demo.FormatJSON
	}

	_, err = runner.Run(cmd.Context(), sess.storageOptions())
	return mapCommandError(err)
}
