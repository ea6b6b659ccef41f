package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type GlobalOptions struct {
	ConfigPath      string
	DBPath          string
	Key             string
	PassphraseStdin bool
	JSON            bool
	LogLevel        string
}

type commandDeps struct {
	globals *GlobalOptions
	out     io.Writer
	errOut  io.Writer
	build   BuildInfo
}

func NewRootCommand(out io.Writer, build BuildInfo) *cobra.Command {
	globals := &GlobalOptions{}
	deps := commandDeps{
		globals: globals,
		out:     out,
		errOut:  os.Stderr,
		build:   build,
	}

	cmd := &cobra.Command{
		Use:   "cipherpoc",
		Short: "Encrypted SQLite round-trip demo",
		Long: "cipherpoc opens (or creates) a SQLCipher-encrypted database, ensures its schema,\n" +
			"inserts one entry, reads every entry back and prints them.",
		Example: "  cipherpoc\n" +
			"  cipherpoc --db ./entries.db --key 2DD29CA851E7B56E4697B0E1F08507293D761A05CE4D1B628663F411A8086D99\n" +
			"  echo 'correct horse' | cipherpoc --passphrase-stdin --json",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          noPositionalArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, deps)
		},
	}
	cmd.SetOut(out)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageErrorf("%v", err)
	})

	flags := cmd.PersistentFlags()
	flags.StringVar(&globals.ConfigPath, "config", "", "Path to config.toml")
	flags.StringVar(&globals.DBPath, "db", "", "Path to the encrypted database file")
	flags.StringVar(&globals.Key, "key", "", "Database key as 64 hex characters or x'HEX'")
	flags.BoolVar(&globals.PassphraseStdin, "passphrase-stdin", false, "Derive the database key from a passphrase read on stdin")
	flags.BoolVar(&globals.JSON, "json", false, "Print machine-readable JSON")
	flags.StringVar(&globals.LogLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newRunCommand(deps))
	cmd.AddCommand(newQueryCommand(deps))
	cmd.AddCommand(newInspectCommand(deps))
	cmd.AddCommand(newVersionCommand(deps))
	cmd.InitDefaultCompletionCmd()
	return cmd
}

func noPositionalArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return usageErrorf("%s does not accept positional arguments, got %q", cmd.CommandPath(), args[0])
	}
	return nil
}
