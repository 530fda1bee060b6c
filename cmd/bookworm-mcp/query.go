package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sha1n/mcp-bookworm-server/internal/app"
	"github.com/sha1n/mcp-bookworm-server/internal/bookworm"
	"github.com/sha1n/mcp-bookworm-server/internal/query"
	"github.com/sha1n/mcp-bookworm-server/internal/results"
	"github.com/spf13/cobra"
)

type queryOptions struct {
	groups       []string
	where        []string
	file         string
	format       string
	dropZeros    bool
	dropUnknowns bool
	limit        int
	dryRun       bool
}

func newQueryCommand() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run one query and print the result table",
		Example: `  bookworm-mcp query -e http://localhost:10012/cgi-bin -d federalist \
    --group date_year --where 'word=whale' --where 'date_year>=1850'
  bookworm-mcp query -e http://localhost:10012/cgi-bin --file query.yaml --format csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(opts.format); err != nil {
				return err
			}
			if opts.file != "" && (len(opts.groups) > 0 || len(opts.where) > 0) {
				return errors.New("--file cannot be combined with --group or --where")
			}

			svc, err := openService(cmd.Flags())
			if err != nil {
				return err
			}
			defer closeService(svc)

			ctx := cmd.Context()
			d, err := buildQuery(ctx, svc, opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("counttype") {
				d.CountType = append([]string{}, svc.GetSettings().CountType...)
			}

			if opts.dryRun {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), d.String())
				return err
			}

			session, err := svc.Session(ctx, d.Database)
			if err != nil {
				return err
			}
			if err := session.Apply(ctx, d); err != nil {
				return err
			}
			res, err := session.Run(ctx)
			if err != nil {
				return err
			}
			frame, err := res.Frame(results.FrameOptions{
				DropZeros:    opts.dropZeros,
				DropUnknowns: opts.dropUnknowns,
			})
			if err != nil {
				return err
			}
			return writeFrame(cmd.OutOrStdout(), frame, opts.format, opts.limit)
		},
	}

	flags := cmd.Flags()
	app.RegisterBookwormFlags(flags)
	flags.StringArrayVarP(&opts.groups, "group", "g", nil, "Field to group by (repeatable, outermost first)")
	flags.StringArrayVarP(&opts.where, "where", "w", nil, "Condition as field<op>value (repeatable)")
	flags.StringVarP(&opts.file, "file", "f", "", "Read the query from a JSON or YAML file")
	flags.StringVarP(&opts.format, "format", "o", bookworm.FormatTable, "Output format: table, csv, or json")
	flags.BoolVar(&opts.dropZeros, "drop-zeros", false, "Drop rows whose counts are all zero")
	flags.BoolVar(&opts.dropUnknowns, "drop-unknowns", false, "Drop rows with unknown group values")
	flags.IntVarP(&opts.limit, "limit", "n", 0, "Print at most this many rows")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print the query instead of running it")

	return cmd
}

// buildQuery reads the query file, or assembles the query from flags
// through the builder.
func buildQuery(ctx context.Context, svc *bookworm.Service, opts queryOptions) (query.Descriptor, error) {
	if opts.file != "" {
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return query.Descriptor{}, fmt.Errorf("failed to read query file: %w", err)
		}
		d, err := query.ParseDescriptor(data)
		if err != nil {
			return query.Descriptor{}, err
		}
		if d.Database, err = svc.Database(d.Database); err != nil {
			return query.Descriptor{}, err
		}
		return d, nil
	}

	b, err := svc.Builder(ctx, "")
	if err != nil {
		return query.Descriptor{}, err
	}
	if _, err := b.Where(opts.where...); err != nil {
		return query.Descriptor{}, err
	}
	terms := make([]query.Term, 0, len(opts.groups))
	for _, g := range opts.groups {
		terms = append(terms, b.Term(g))
	}
	return b.Groups(terms...).WireDescriptor(), nil
}
