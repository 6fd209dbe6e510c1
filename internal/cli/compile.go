package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/syssam/vlquery/dialect/sql"
	"github.com/syssam/vlquery/query"
	"github.com/syssam/vlquery/schema"
)

var (
	compileFlags  queryFlags
	compileInline bool
)

var compileCmd = &cobra.Command{
	Use:   "compile <entity>",
	Short: "Print the SQL for a query without running it",
	Long: `Compiles a query over the named entity and prints the statement and its
parameters. No database connection is needed.

Example:
  vlquery compile Order -s shop.yaml -w '{"compare":{"left":{"path":["total"]},"right":{"value":100},"operator":">"}}' -i customer`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Schema == "" {
			return fmt.Errorf("no schema file configured (use --schema)")
		}
		registry, err := schema.Load(cfg.Schema)
		if err != nil {
			return err
		}
		q, err := apply(query.New(registry, nil, args[0]), &compileFlags)
		if err != nil {
			return err
		}
		if compileFlags.count {
			q = q.Count()
		}
		text, params, err := q.ToSQL()
		if err != nil {
			return err
		}
		if params == nil {
			params = []any{}
		}
		out := cmd.OutOrStdout()
		switch {
		case jsonOutput:
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				SQL  string `json:"sql"`
				Args []any  `json:"args"`
			}{text, params})
		case compileInline:
			_, err = fmt.Fprintln(out, sql.Inline(text, params))
			return err
		}
		if _, err := fmt.Fprintln(out, text); err != nil {
			return err
		}
		for i, p := range params {
			if _, err := fmt.Fprintf(out, "$%d = %v\n", i+1, p); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	compileFlags.register(compileCmd)
	compileCmd.Flags().BoolVar(&compileInline, "inline", false, "Print the statement with parameters inlined")
	rootCmd.AddCommand(compileCmd)
}
