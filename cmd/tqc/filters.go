package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tablequery/internal/domain/filter"
)

func newParseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <filter>...",
		Short: "Show how filter strings are read",
		Example: `  tqc parse 'age;gte;21' 'created_at;between;2024-01-01;2024-12-31'
  tqc --delimiter '^' parse 'name^like^%ann%'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			for _, spec := range args {
				d, err := filter.Parse(spec, a.cfg.Delimiter)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\tcolumn=%s operator=%q kind=%s value=%v\n",
					spec, d.Column, d.Operator, d.Kind(), d.Value)
			}
			return nil
		},
	}
}

func newEncodeCmd(a *app) *cobra.Command {
	var (
		file     string
		compress bool
	)

	cmd := &cobra.Command{
		Use:   "encode [filter...]",
		Short: "Build a base64 filters payload",
		Long: `Build the payload accepted by the "filters" option.

Filter strings given as arguments are validated and encoded as a JSON array.
--file encodes a JSON array or object of filter entries as is.`,
		Example: `  tqc encode 'age;gte;21' 'name;like;%ann%'
  tqc encode --zstd --file filters.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries any
			switch {
			case file != "" && len(args) > 0:
				return fmt.Errorf("pass filters as arguments or --file, not both")
			case file != "":
				raw, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("reading filters: %w", err)
				}
				if err := json.Unmarshal(raw, &entries); err != nil {
					return fmt.Errorf("parsing filters: %w", err)
				}
			case len(args) > 0:
				for _, spec := range args {
					if _, err := filter.Parse(spec, a.cfg.Delimiter); err != nil {
						return err
					}
				}
				entries = args
			default:
				return fmt.Errorf("no filters given")
			}

			payload, err := filter.EncodePayload(entries, compress || a.cfg.Zstd)
			if err != nil {
				return err
			}

			// fail before handing out a payload the server would reject
			if _, err := filter.DecodePayload(payload, a.cfg.Delimiter); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), payload)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "JSON file of filter entries")
	cmd.Flags().BoolVar(&compress, "zstd", false, "zstd-compress the payload")
	return cmd
}

func newDecodeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "decode <payload>",
		Short: "Print the filters in a base64 filters payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := filter.DecodePayload(args[0], a.cfg.Delimiter)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, f := range filters {
				switch v := f.(type) {
				case filter.Spec:
					d, err := filter.Parse(string(v), a.cfg.Delimiter)
					if err != nil {
						return err
					}
					fmt.Fprintln(w, d.String())
				case filter.Descriptor:
					fmt.Fprintln(w, v.String())
				default:
					fmt.Fprintf(w, "%T\n", f)
				}
			}
			return nil
		},
	}
}
