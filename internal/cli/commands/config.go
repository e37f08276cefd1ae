package commands

import (
	"fmt"

	"github.com/leapstack-labs/dsablate/internal/cli/config"
	"github.com/leapstack-labs/dsablate/internal/cli/output"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCommand creates the config command.
func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Show the configuration after merging defaults, dsablate.yaml,
DSABLATE_ environment variables and flags. Paths are shown resolved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd)
		},
	}
}

func runConfigShow(cmd *cobra.Command) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer
	cfg := cmdCtx.Cfg

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(cfg)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	source := config.GetConfigFileUsed()
	if source == "" {
		source = "(defaults)"
	}

	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatHeader(1, "Configuration"))
		r.Println(output.FormatKeyValue("Source", source))
		r.Println("")
		r.Println("```yaml")
		r.Printf("%s", data)
		r.Println("```")
		return nil
	}

	r.Header(1, "Configuration")
	r.KeyValue("Source", source)
	r.Println("")
	r.Printf("%s", data)
	return nil
}
