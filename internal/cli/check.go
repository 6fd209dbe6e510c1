package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/syssam/vlquery"
	sqlschema "github.com/syssam/vlquery/dialect/sql/schema"
)

var (
	checkAllowTypes    bool
	checkAllowUnmapped bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Compare the entity schema with the database",
	Long: `Reads the catalog of the configured database and reports tables and
columns the entity schema maps but the database lacks, type mismatches and
required columns no entity maps. Exits non-zero when errors are found.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client, err := vlquery.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		return runCheck(ctx, cmd, client)
	},
}

func runCheck(ctx context.Context, cmd *cobra.Command, client *vlquery.Client) error {
	var opts []sqlschema.VerifyOption
	if checkAllowTypes {
		opts = append(opts, sqlschema.AllowTypeMismatch())
	}
	if checkAllowUnmapped {
		opts = append(opts, sqlschema.AllowUnmappedRequired())
	}
	result, err := client.Verify(ctx, opts...)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else if _, err := fmt.Fprintln(out, result); err != nil {
		return err
	}
	if result.HasErrors() {
		return fmt.Errorf("schema check failed: %d error(s)", len(result.Errors))
	}
	return nil
}

func init() {
	checkCmd.Flags().BoolVar(&checkAllowTypes, "allow-type-mismatch", false, "Report type mismatches as warnings")
	checkCmd.Flags().BoolVar(&checkAllowUnmapped, "allow-unmapped", false, "Report unmapped required columns as warnings")
	rootCmd.AddCommand(checkCmd)
}
