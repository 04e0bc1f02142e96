package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-relations/cmd/pebble/output"
)

type statement interface {
	ToSQL() (string, []any, error)
}

type translation struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

// NewTranslateCmd creates the translate command.
func NewTranslateCmd(opts *options) *cobra.Command {
	var (
		flags selectFlags
		kind  string
	)

	cmd := &cobra.Command{
		Use:   "translate <entity>",
		Short: "Print the SQL of a filtered query without running it",
		Long: `Resolve the relationship joins of a filter document and print the statement
and its arguments. No database connection is needed.`,
		Example: `  pebble translate book -f '{"author.country.name": "NL"}'
  pebble translate book -f '{"tags.name": {"contain": "go"}}' --kind count
  pebble translate book -f '{"or": [{"title": "Dune"}, {"author.name": "Herbert"}]}' --isolate-or --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := opts.registry()
			if err != nil {
				return err
			}
			db := opts.adapter(nil, reg, opts.logger(cmd))

			var stmt statement
			switch kind {
			case "select":
				c := db.Select(args[0])
				if err := flags.apply(c); err != nil {
					return err
				}
				stmt = c
			case "count", "delete":
				where, err := parseFilter(flags.filter)
				if err != nil {
					return err
				}
				if kind == "count" {
					stmt = db.Count(args[0]).Where(where)
				} else {
					stmt = db.Delete(args[0]).Where(where)
				}
			default:
				return fmt.Errorf("unknown kind %q (select, count, delete)", kind)
			}

			sql, sqlArgs, err := stmt.ToSQL()
			if err != nil {
				return err
			}
			if sqlArgs == nil {
				sqlArgs = []any{}
			}

			out := output.New(cmd.OutOrStdout())
			if opts.jsonOutput {
				return out.JSON(translation{SQL: sql, Args: sqlArgs})
			}
			out.Primary("%s", sql)
			for i, arg := range sqlArgs {
				out.Field(fmt.Sprintf("$%d", i+1), fmt.Sprintf("%v (%T)", arg, arg))
			}
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().StringVar(&kind, "kind", "select", "Statement kind: select, count or delete")

	return cmd
}
