package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-relations/cmd/pebble/output"
	"github.com/marshallshelly/pebble-relations/pkg/schema"
)

type entitySummary struct {
	Name          string                `json:"name"`
	PrimaryKey    []string              `json:"primaryKey"`
	Columns       []string              `json:"columns"`
	Relationships []relationshipSummary `json:"relationships"`
}

type relationshipSummary struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Target    string `json:"target"`
	Keys      string `json:"keys"`
	JoinTable string `json:"joinTable,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
}

// NewSchemaCmd creates the schema command.
func NewSchemaCmd(opts *options) *cobra.Command {
	var relType string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "List entities and their relationships",
		Long: `Load the schema document and print every entity with its columns and
resolved relationship keys.`,
		Example: `  pebble schema --schema library.yaml
  pebble schema --schema library.toml --json
  pebble schema --type manyToMany`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := schema.RelationType(relType)
			if kind != "" && !kind.Valid() {
				return fmt.Errorf("unknown relationship type %q", relType)
			}

			reg, err := opts.registry()
			if err != nil {
				return err
			}

			tables := reg.All()
			summaries := make([]entitySummary, 0, len(tables))
			for _, table := range tables {
				rels := table.Relationships
				if kind != "" {
					if rels = table.GetRelationshipsByType(kind); len(rels) == 0 {
						continue
					}
				}
				summary, err := summarize(table, rels, reg.GetByName)
				if err != nil {
					return err
				}
				summaries = append(summaries, summary)
			}

			out := output.New(cmd.OutOrStdout())
			if opts.jsonOutput {
				return out.JSON(summaries)
			}

			for _, s := range summaries {
				out.Section(s.Name)
				out.Field("primary key", strings.Join(s.PrimaryKey, ", "))
				out.Field("columns", strings.Join(s.Columns, ", "))
				if len(s.Relationships) == 0 {
					out.Muted("no relationships")
				}
				for _, rel := range s.Relationships {
					line := rel.Name + " " + output.KindIcon(rel.Type) + " " + rel.Target
					out.Field(rel.Type, line)
					out.Muted("                 %s", rel.Keys)
				}
			}
			out.Muted("")
			out.Success("%d entities", len(summaries))
			return nil
		},
	}

	cmd.Flags().StringVar(&relType, "type", "", "Only list relationships of this type (oneToOne, oneToMany, manyToOne, manyToMany, custom)")
	return cmd
}

func summarize(table *schema.TableMetadata, rels []schema.RelationshipMetadata, lookup func(string) (*schema.TableMetadata, error)) (entitySummary, error) {
	s := entitySummary{
		Name:          table.Name,
		PrimaryKey:    []string{},
		Columns:       make([]string, 0, len(table.Columns)),
		Relationships: make([]relationshipSummary, 0, len(rels)),
	}
	if table.PrimaryKey != nil {
		s.PrimaryKey = table.PrimaryKey.Columns
	}
	for _, col := range table.Columns {
		s.Columns = append(s.Columns, col.Name)
	}
	if !table.HasRelationships() {
		return s, nil
	}

	for i := range rels {
		rel := &rels[i]
		r := relationshipSummary{
			Name:     rel.Name,
			Type:     string(rel.Type),
			Target:   rel.TargetTable,
			Strategy: rel.Strategy,
		}

		if rel.Type == schema.Custom {
			r.Keys = "strategy " + rel.Strategy
			s.Relationships = append(s.Relationships, r)
			continue
		}

		target, err := lookup(rel.TargetTable)
		if err != nil {
			return s, err
		}
		keys, err := rel.Keys(table, target)
		if err != nil {
			return s, err
		}

		switch rel.Type {
		case schema.ManyToMany:
			r.JoinTable = rel.JoinTable
			r.Keys = table.Name + "." + keys.Source + " = " + rel.JoinTable + "." + rel.JoinForeignKey +
				", " + rel.JoinTable + "." + rel.JoinReferences + " = " + rel.TargetTable + "." + keys.Target
		default:
			r.Keys = table.Name + "." + keys.Source + " = " + rel.TargetTable + "." + keys.Target
		}
		s.Relationships = append(s.Relationships, r)
	}
	return s, nil
}
