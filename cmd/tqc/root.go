package main

import (
	"github.com/spf13/cobra"
)

// app carries state shared by every command.
type app struct {
	cfgFile    string
	cfg        *Config
	configPath string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "tqc",
		Short: "Table query compiler",
		Long: `tqc - table query compiler

Compiles options bags (search, filters, relations, ordering, pagination) into
the PostgreSQL statements the tablequery server would run.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			var err error
			a.cfg, a.configPath, err = loadConfig(a.cfgFile, cmd.Flags())
			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./tqc.yaml when present)")
	root.PersistentFlags().String("schema", "", "schema YAML file (default: schema.yaml)")
	root.PersistentFlags().String("delimiter", "", "filter delimiter (default: ;)")
	root.PersistentFlags().String("timezone", "", "location for date-range searches (default: Local)")

	root.AddCommand(
		newCompileCmd(a),
		newParseCmd(a),
		newEncodeCmd(a),
		newDecodeCmd(a),
		newTokenCmd(a),
	)
	return root
}
