package sources

import (
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/config"
)

func NewSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "prints the resolved source configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := config.LoadSources(viper.GetViper(), config.SourceSpecs)
			if err != nil {
				return err
			}
			return printSources(cmd.OutOrStdout(), sources)
		},
	}
	return cmd
}

func printSources(w io.Writer, sources []config.Source) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(map[string]any{"sources": sources})
}
