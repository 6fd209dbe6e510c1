package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/syssam/vlquery"
)

var queryFlagSet queryFlags

var queryCmd = &cobra.Command{
	Use:   "query <entity>",
	Short: "Run a query and print the entities as JSON",
	Long: `Runs a query over the named entity against the configured database and
prints the materialized entities, with their eagerly loaded relations, as
JSON. The statement waits across connection outages until it succeeds or
the command is interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client, err := vlquery.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		return runQuery(ctx, cmd, client, args[0], &queryFlagSet)
	},
}

func runQuery(ctx context.Context, cmd *cobra.Command, client *vlquery.Client, entity string, f *queryFlags) error {
	q, err := apply(client.Set(entity).Query(), f)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if f.count {
		n, err := q.Count(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return enc.Encode(map[string]int{"count": n})
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
		return err
	}
	es, err := q.All(ctx)
	if err != nil {
		return err
	}
	return enc.Encode(es)
}

func init() {
	queryFlagSet.register(queryCmd)
	rootCmd.AddCommand(queryCmd)
}
