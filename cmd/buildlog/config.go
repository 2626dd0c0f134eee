// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"buildlog-cli/internal/config"
)

// newConfigCommand creates the `buildlog config` command tree.
func newConfigCommand(app *App, rf *rootFlags) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage buildlog configuration",
		Long: `Manage buildlog configuration.

Configuration is read from the --config file when given, otherwise from:
  - Linux: $XDG_CONFIG_HOME/buildlog/config.cue (default ~/.config)
  - macOS: ~/Library/Application Support/buildlog/config.cue
  - Windows: %APPDATA%\buildlog\config.cue
and finally from ./config.cue. BUILDLOG_* environment variables override
file values, e.g. BUILDLOG_OUTPUT=yaml or BUILDLOG_SUBSTITUTION_TIMEOUT=5s.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context(), rf)
			if err != nil {
				return app.fail(cmd, err, rf.verbose, exitFailure)
			}
			path, _ := config.ResolvePath(config.LoadOptions{ConfigFilePath: rf.cfgFile})
			showConfig(cmd.OutOrStdout(), cfg, path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context(), rf)
			if err != nil {
				return app.fail(cmd, err, rf.verbose, exitFailure)
			}
			fmt.Fprint(cmd.OutOrStdout(), config.GenerateCUE(cfg))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, created, err := config.CreateDefaultConfig(rf.cfgFile)
			if err != nil {
				return app.fail(cmd, err, rf.verbose, exitFailure)
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s Configuration already exists at %s\n", SubtitleStyle.Render("•"), path)
			}
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir, err := config.ConfigDir()
			if err != nil {
				return app.fail(cmd, err, rf.verbose, exitFailure)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config directory: %s\n", cfgDir)
			fmt.Fprintf(out, "Config file: %s\n", filepath.Join(cfgDir, config.ConfigFileName+"."+config.ConfigFileExt))
			if path, _ := config.ResolvePath(config.LoadOptions{ConfigFilePath: rf.cfgFile}); path != "" {
				fmt.Fprintf(out, "In use: %s\n", path)
			}
			return nil
		},
	})

	return cfgCmd
}

func showConfig(w io.Writer, cfg *config.Config, path string) {
	headerStyle := TitleStyle
	keyStyle := CmdStyle
	valueStyle := SuccessStyle

	fmt.Fprintln(w, headerStyle.Render("Current Configuration"))
	fmt.Fprintln(w)

	if path != "" {
		fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("Config file"), path)
	} else {
		fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("format"), valueStyle.Render(cfg.Format))
	fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("dialect"), valueStyle.Render(cfg.Dialect))
	fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("output"), valueStyle.Render(cfg.Output))
	fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("response_file_marker"), valueStyle.Render(cfg.ResponseFileMarker))
	fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("strict"), valueStyle.Render(fmt.Sprintf("%v", cfg.Strict)))
	fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("jobs"), valueStyle.Render(fmt.Sprintf("%d", cfg.Jobs)))

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", keyStyle.Render("substitution"))
	fmt.Fprintf(w, "  enabled: %s\n", valueStyle.Render(fmt.Sprintf("%v", cfg.Substitution.Enabled)))
	fmt.Fprintf(w, "  timeout: %s\n", valueStyle.Render(cfg.Substitution.Timeout.String()))

	for _, section := range []struct {
		key   string
		repls []config.ReplacementConfig
	}{
		{"replacements", cfg.Replacements},
		{"trace_replacements", cfg.TraceReplacements},
	} {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s:\n", keyStyle.Render(section.key))
		if len(section.repls) == 0 {
			fmt.Fprintf(w, "  %s\n", SubtitleStyle.Render("(none configured)"))
			continue
		}
		for _, r := range section.repls {
			fmt.Fprintf(w, "  - %s => %s\n", valueStyle.Render(r.Pattern), valueStyle.Render(r.Replacement))
		}
	}
}
