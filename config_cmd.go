package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"constellationFinder/config"
	"constellationFinder/utils"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if help, _ := cmd.Flags().GetBool("instructions"); help {
			config.PrintConfigInstructions()
			return nil
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		key := color.New(color.Bold).SprintFunc()

		source := "defaults + environment"
		if p := os.Getenv(config.ConfigPathEnvVar); p != "" && utils.FileExists(p) {
			source = p
		} else {
			for _, p := range config.DefaultConfigPaths {
				if utils.FileExists(p) {
					source = p
					break
				}
			}
		}
		fmt.Fprintf(out, "%s %s\n", key("source:"), source)
		fmt.Fprintf(out, "%s %s\n", key("listen:"), cfg.Addr())
		fmt.Fprintf(out, "%s %s (%s)\n", key("storage:"), cfg.Storage.Backend, cfg.Storage.DataRoot)
		fmt.Fprintf(out, "%s %s %s\n", key("llm:"), cfg.LLM.Model, status(cfg.HasValidAPI()))
		fmt.Fprintf(out, "%s asr=%s tts=%s detector=%s\n", key("providers:"), cfg.ASR.Provider, cfg.TTS.Provider, cfg.Detector.Provider)
		fmt.Fprintf(out, "%s frame %s, upload %s\n", key("limits:"),
			utils.FormatBytes(cfg.Pipeline.StreamMaxBytes), utils.FormatBytes(cfg.Pipeline.BatchMaxBytes))

		if files, size, err := utils.DirSize(cfg.StagingDir()); err == nil {
			fmt.Fprintf(out, "%s %d file(s), %s\n", key("staging:"), files, utils.FormatBytes(size))
		}
		return nil
	},
}

func status(ok bool) string {
	if ok {
		return color.GreenString("configured")
	}
	return color.YellowString("not configured (unavailable)")
}

func init() {
	configCmd.Flags().Bool("instructions", false, "print configuration instructions")
	rootCmd.AddCommand(configCmd)
}
