package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-relations/pkg/builder"
	"github.com/marshallshelly/pebble-relations/pkg/filter"
)

// selectFlags configures a SelectMany command from the command line.
type selectFlags struct {
	filter     string
	selection  []string
	with       []string
	withFilter []string
	order      []string
	limit      int
	offset     int
}

func (f *selectFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.filter, "filter", "f", "", "Filter document (JSON)")
	cmd.Flags().StringSliceVar(&f.selection, "select", nil, "Root columns to select")
	cmd.Flags().StringSliceVarP(&f.with, "with", "w", nil, "Associations to load")
	cmd.Flags().StringArrayVar(&f.withFilter, "with-filter", nil, "Association filter as property=<filter JSON>")
	cmd.Flags().StringSliceVarP(&f.order, "order", "o", nil, "Order columns; prefix with - for descending")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Maximum number of rows")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "Rows to skip")
}

func parseFilter(doc string) (filter.Node, error) {
	if strings.TrimSpace(doc) == "" {
		return nil, nil
	}
	return filter.Parse([]byte(doc))
}

// apply configures c. Associations named only by --with-filter are loaded too.
func (f *selectFlags) apply(c *builder.Command[[]builder.Row]) error {
	where, err := parseFilter(f.filter)
	if err != nil {
		return err
	}
	c.Where(where)

	if len(f.selection) > 0 {
		c.Select(f.selection...)
	}

	filters := make(map[string]filter.Node, len(f.withFilter))
	order := append([]string(nil), f.with...)
	for _, raw := range f.withFilter {
		property, doc, ok := strings.Cut(raw, "=")
		if !ok || property == "" {
			return fmt.Errorf("invalid --with-filter %q: expected property=<filter JSON>", raw)
		}
		node, err := parseFilter(doc)
		if err != nil {
			return fmt.Errorf("association %s: %w", property, err)
		}
		filters[property] = node
		order = append(order, property)
	}

	seen := make(map[string]bool, len(order))
	for _, property := range order {
		if seen[property] {
			continue
		}
		seen[property] = true
		c.Associate(property, builder.AssociationRequest{Filter: filters[property]})
	}

	for _, col := range f.order {
		if name, ok := strings.CutPrefix(col, "-"); ok {
			c.OrderByDesc(name)
		} else {
			c.OrderByAsc(col)
		}
	}
	if f.limit > 0 {
		c.Limit(f.limit)
	}
	if f.offset > 0 {
		c.Offset(f.offset)
	}
	return c.Err()
}
