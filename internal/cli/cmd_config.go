package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var showSources bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if showSources {
				sources := tc.Sources()
				if jsonOut {
					return printJSON(out, sources)
				}
				keys := make([]string, 0, len(sources))
				for k := range sources {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(out, "%-32s %s\n", k, sources[k])
				}
				return nil
			}
			if jsonOut {
				return printJSON(out, tc.Config)
			}
			data, err := yaml.Marshal(tc.Config)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&showSources, "sources", false, "show where each non-default setting came from")
	return cmd
}
