package commands

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-relations/cmd/pebble/output"
	"github.com/marshallshelly/pebble-relations/pkg/builder"
	"github.com/marshallshelly/pebble-relations/pkg/runtime"
)

// NewQueryCmd creates the query command.
func NewQueryCmd(opts *options) *cobra.Command {
	var (
		flags   selectFlags
		count   bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "query <entity>",
		Short: "Run a filtered query and load associations",
		Long: `Run a SelectMany query against the database and print the rows with their
requested associations attached.`,
		Example: `  pebble query book --db postgres://localhost/library -f '{"author.name": "Herbert"}' -w author,tags
  pebble query book -w 'reviews' --with-filter 'tags={"name": {"start": "sci"}}' --limit 10
  pebble query author -f '{"books.title": {"contain": "Dune"}}' --count`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := opts.registry()
			if err != nil {
				return err
			}
			url, err := opts.connectionURL()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			logger := opts.logger(cmd)
			conn, err := runtime.ConnectWithURL(ctx, url, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			db := opts.adapter(conn, reg, logger)
			out := output.New(cmd.OutOrStdout())

			if count {
				where, err := parseFilter(flags.filter)
				if err != nil {
					return err
				}
				n, err := db.Count(args[0]).Where(where).Execute(ctx)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return out.JSON(map[string]int64{"count": n})
				}
				out.Success("%d rows", n)
				return nil
			}

			c := db.Select(args[0])
			if err := flags.apply(c); err != nil {
				return err
			}
			rows, err := c.Execute(ctx)
			if err != nil {
				return err
			}

			if err := out.JSON(jsonRows(rows)); err != nil {
				return err
			}
			if !opts.jsonOutput {
				out.Success("%d rows", len(rows))
			}
			return nil
		},
	}

	flags.bind(cmd)
	cmd.Flags().BoolVar(&count, "count", false, "Print the number of matching rows")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Query timeout")

	return cmd
}

func jsonRows(rows []builder.Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = jsonRow(row)
	}
	return out
}

func jsonRow(row builder.Row) map[string]any {
	if row == nil {
		return nil
	}
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = jsonValue(v)
	}
	return out
}

// jsonValue converts driver values without a useful JSON form.
func jsonValue(v any) any {
	switch v := v.(type) {
	case builder.Row:
		return jsonRow(v)
	case []builder.Row:
		return jsonRows(v)
	case [16]byte:
		return uuid.UUID(v).String()
	case []byte:
		return string(v)
	}
	return v
}
