package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/cipherpoc/cipherpoc/internal/demo"
	"github.com/cipherpoc/cipherpoc/internal/storage"
)

func newQueryCommand(deps commandDeps) *cobra.Command {
	var (
		dhtFrom uint32
		dhtTo   uint32
		since   string
		until   string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List entries within a dht_loc and created_at range",
		Example: "  cipherpoc query --dht-from 1000 --dht-to 2000\n" +
			"  cipherpoc query --since 2024-01-01T00:00:00Z --json",
		Args: noPositionalArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.EntryFilter{}
			if cmd.Flags().Changed("dht-from") {
				filter.DHTLocFrom = &dhtFrom
			}
			if cmd.Flags().Changed("dht-to") {
				filter.DHTLocTo = &dhtTo
			}
			if since != "" {
				parsed, err := parseTimeFlag("since", since)
				if err != nil {
					return err
				}
				filter.Since = &parsed
			}
			if until != "" {
				parsed, err := parseTimeFlag("until", until)
				if err != nil {
					return err
				}
				filter.Until = &parsed
			}
			if filter.DHTLocFrom != nil && filter.DHTLocTo != nil && *filter.DHTLocFrom > *filter.DHTLocTo {
				return usageErrorf("--dht-from must not exceed --dht-to")
			}
			if filter.Since != nil && filter.Until != nil && filter.Since.After(*filter.Until) {
				return usageErrorf("--since must not be after --until")
			}

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

			entries, err := store.Entries.Query(cmd.Context(), filter)
			if err != nil {
				return mapCommandError(err)
			}
			sess.logger.Debug("query complete", "count", len(entries))

			format := demo.FormatText
			if deps.globals.JSON {
				format = demo.FormatJSON
			}
			return mapCommandError(demo.WriteReport(deps.out, entries, format))
		},
	}

	cmd.Flags().Uint32Var(&dhtFrom, "dht-from", 0, "Lowest dht_loc to include")
	cmd.Flags().Uint32Var(&dhtTo, "dht-to", 0, "Highest dht_loc to include")
	cmd.Flags().StringVar(&since, "since", "", "Earliest created_at to include (RFC3339)")
	cmd.Flags().StringVar(&until, "until", "", "Latest created_at to include (RFC3339)")
	return cmd
}

func parseTimeFlag(name, value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, usageErrorf("--%s: expected RFC3339 timestamp: %v", name, err)
	}
	return parsed.UTC(), nil
}
