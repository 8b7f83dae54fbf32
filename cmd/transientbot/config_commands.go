package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"transientbot/internal/config"
	"transientbot/internal/imagery"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check the TOML configuration",
	}
	configCmd.AddCommand(newConfigInitCommand(), newConfigValidateCommand(ctx))
	return configCmd
}

// initTarget resolves the destination for `config init`, defaulting to the
// per-user config location.
func initTarget(raw string) (string, error) {
	if raw = strings.TrimSpace(raw); raw == "" {
		path, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return path, nil
	}
	path, err := config.ExpandPath(raw)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return path, nil
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented sample configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(targetPath)
			if err != nil {
				return err
			}
			_, statErr := os.Stat(target)
			switch {
			case statErr == nil && !overwrite:
				return fmt.Errorf("%s already exists (pass --overwrite to replace it)", target)
			case statErr != nil && !errors.Is(statErr, fs.ErrNotExist):
				return fmt.Errorf("check config path: %w", statErr)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintln(out, "  1. point paths.source_list at the detection pipeline's transients.txt")
			fmt.Fprintln(out, "  2. export SLACK_BOT_TOKEN and SLACK_CHANNEL_ID (and SLACK_APP_TOKEN for live votes)")
			fmt.Fprintln(out, "  3. run `transientbot run --dry-run` to preview the first run")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load, normalize, and validate the configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			source := path
			if !exists {
				source = path + " (not found; defaults used)"
			}
			surveys := strings.Join(imagery.FromConfig(cfg).Surveys(), ", ")
			if surveys == "" {
				surveys = "none"
			}
			out := cmd.OutOrStdout()
			for _, kv := range [][2]string{
				{"Config path", source},
				{"Source list", cfg.Paths.SourceList},
				{"Processed store", cfg.Paths.ProcessedStore},
				{"Slack configured", yesNo(cfg.SlackEnabled())},
				{"Surveys", surveys},
			} {
				fmt.Fprintf(out, "%-17s %s\n", kv[0]+":", kv[1])
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}
