package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tablequery/internal/domain/filter"
	"tablequery/internal/domain/relation"
	"tablequery/internal/domain/tablequery"
	"tablequery/internal/metadata"
	"tablequery/pkg/logger"
)

type compileOutput struct {
	SQL         string   `json:"sql"`
	Args        []any    `json:"args"`
	CountSQL    string   `json:"countSql"`
	CountArgs   []any    `json:"countArgs"`
	Page        int      `json:"page"`
	Limit       int      `json:"limit"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

func newCompileCmd(a *app) *cobra.Command {
	var (
		optionsPath string
		filters     []string
		include     []string
		search      string
		byColumn    string
		orderBy     string
		ascending   bool
		page        int
		limit       int
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "compile <table>",
		Short: "Print the SQL an options bag compiles to",
		Example: `  # Filters and a relation on top of the schema defaults
  tqc compile workers --filter 'age;gte;21' --include 'notes|count(*) as notes_count'

  # Options bag from a file, page 2 as JSON
  tqc compile workers --options opts.json --page 2 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := metadata.LoadRegistry(a.cfg.Schema)
			if err != nil {
				return fmt.Errorf("loading schema %s: %w", a.cfg.Schema, err)
			}

			opts, err := readOptions(optionsPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if opts.Delimiter == "" {
				opts.Delimiter = a.cfg.Delimiter
			}
			if search != "" {
				opts.Search = tablequery.Text(search)
			}
			if byColumn != "" {
				opts.SearchColumn = byColumn
			}
			if orderBy != "" {
				opts.OrderBy = orderBy
			}
			if cmd.Flags().Changed("asc") {
				opts.Ascending = tablequery.Flag(ascending)
			}
			if page > 0 {
				opts.Page = page
			}
			if limit > 0 {
				opts.Limit = limit
			}
			for _, f := range filters {
				opts.Filters = append(opts.Filters, filter.Spec(f))
			}

			location, err := time.LoadLocation(a.cfg.Timezone)
			if err != nil {
				return fmt.Errorf("timezone: %w", err)
			}

			specs := make([]relation.Spec, len(include))
			for i, expr := range include {
				specs[i] = relation.Expr(expr)
			}

			b, err := registry.Builder(args[0], specs,
				tablequery.WithLogger(logger.NewNop()),
				tablequery.WithLocation(location),
			)
			if err != nil {
				return err
			}

			compiled, err := b.SetOptions(opts).Compile(cmd.Context(), 0)
			if err != nil {
				return err
			}

			out := compileOutput{Page: compiled.Page, Limit: compiled.Limit}
			if out.SQL, out.Args, err = compiled.Paginated.ToSql(); err != nil {
				return err
			}
			if out.CountSQL, out.CountArgs, err = compiled.Query.Count().ToSql(); err != nil {
				return err
			}
			for _, d := range compiled.Diagnostics {
				out.Diagnostics = append(out.Diagnostics, d.Message)
			}

			return printCompiled(cmd.OutOrStdout(), out, asJSON)
		},
	}

	cmd.Flags().StringVar(&optionsPath, "options", "", "JSON options bag file (- for stdin)")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "filter string, repeatable")
	cmd.Flags().StringArrayVarP(&include, "include", "i", nil, "relation spec, repeatable")
	cmd.Flags().StringVarP(&search, "query", "q", "", "free-text search")
	cmd.Flags().StringVar(&byColumn, "by-column", "", "restrict search to one column")
	cmd.Flags().StringVar(&orderBy, "order-by", "", "order column")
	cmd.Flags().BoolVar(&ascending, "asc", false, "ascending order")
	cmd.Flags().IntVar(&page, "page", 0, "page number")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func readOptions(path string, stdin io.Reader) (tablequery.Options, error) {
	var opts tablequery.Options
	if path == "" {
		return opts, nil
	}

	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return opts, fmt.Errorf("reading options: %w", err)
	}

	if err := json.Unmarshal(raw, &opts); err != nil {
		return opts, fmt.Errorf("parsing options: %w", err)
	}
	return opts, nil
}

func printCompiled(w io.Writer, out compileOutput, asJSON bool) error {
	if out.Args == nil {
		out.Args = []any{}
	}
	if out.CountArgs == nil {
		out.CountArgs = []any{}
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "-- page %d, limit %d\n%s;\n", out.Page, out.Limit, out.SQL)
	fmt.Fprintf(w, "-- args: %v\n\n", out.Args)
	fmt.Fprintf(w, "-- count\n%s;\n", out.CountSQL)
	fmt.Fprintf(w, "-- args: %v\n", out.CountArgs)
	for _, d := range out.Diagnostics {
		fmt.Fprintf(w, "-- warning: %s\n", d)
	}
	return nil
}
