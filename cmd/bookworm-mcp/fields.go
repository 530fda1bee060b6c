package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/sha1n/mcp-bookworm-server/internal/app"
	"github.com/sha1n/mcp-bookworm-server/internal/bookworm"
	"github.com/sha1n/mcp-bookworm-server/internal/query"
	"github.com/spf13/cobra"
)

func newFieldsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "Inspect the metadata fields of a database",
	}
	cmd.AddCommand(newFieldsListCommand(), newFieldsSearchCommand(), newFieldsValuesCommand())
	return cmd
}

func newFieldsListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every field with its type and description",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd.Flags())
			if err != nil {
				return err
			}
			defer closeService(svc)

			catalog, err := svc.Catalog(cmd.Context(), "")
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "NAME\tTYPE\tDESCRIPTION")
			for _, f := range catalog.Fields() {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Name, f.Type, oneLine(f.Description))
			}
			return tw.Flush()
		},
	}
	app.RegisterBookwormFlags(cmd.Flags())
	return cmd
}

func newFieldsSearchCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search fields by name or description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd.Flags())
			if err != nil {
				return err
			}
			defer closeService(svc)

			catalog, err := svc.Catalog(cmd.Context(), "")
			if err != nil {
				return err
			}

			text := strings.Join(args, " ")
			hits, err := catalog.Search(text, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hits) == 0 {
				_, err := fmt.Fprintf(out, "No fields found for %q\n", text)
				return err
			}
			for _, h := range hits {
				_, _ = fmt.Fprintf(out, "%s (%s): %s\n", h.Name, h.Type, oneLine(h.Description))
			}
			return nil
		},
	}
	app.RegisterBookwormFlags(cmd.Flags())
	cmd.Flags().IntVarP(&limit, "limit", "n", bookworm.DefaultSearchLimit, "Maximum number of matches")
	return cmd
}

func newFieldsValuesCommand() *cobra.Command {
	var (
		where []string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "values <field>",
		Short: "List the values of a field, most frequent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService(cmd.Flags())
			if err != nil {
				return err
			}
			defer closeService(svc)

			ctx := cmd.Context()
			session, err := svc.Session(ctx, "")
			if err != nil {
				return err
			}

			var values []string
			if len(where) > 0 {
				limits := make([]query.Fragment, 0, len(where))
				for _, c := range where {
					f, err := query.ParseCondition(c)
					if err != nil {
						return err
					}
					limits = append(limits, f)
				}
				if err := session.SetSearchLimits(ctx, limits...); err != nil {
					return err
				}
				values, err = session.LimitedFieldValues(ctx, args[0])
			} else {
				values, err = session.FieldValues(ctx, args[0])
			}
			if err != nil {
				return err
			}

			if limit > 0 && len(values) > limit {
				values = values[:limit]
			}
			out := cmd.OutOrStdout()
			for _, v := range values {
				_, _ = fmt.Fprintln(out, v)
			}
			return nil
		},
	}
	app.RegisterBookwormFlags(cmd.Flags())
	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "Condition as field<op>value (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Print at most this many values")
	return cmd
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
