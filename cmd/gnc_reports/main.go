package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/gnc_reports/internal/config"
)

var (
	configPath  string
	downloadDir string
	period      string
	pollTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "gnc_reports",
	Short:         "Download the ENARGAS GNC statistical reports as .xls files",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the config file")
	rootCmd.PersistentFlags().StringVar(&downloadDir, "dir", "", "download directory (overrides download.dir)")
	rootCmd.PersistentFlags().StringVar(&period, "period", "", "value of the period filter, e.g. 2025")
	rootCmd.PersistentFlags().DurationVar(&pollTimeout, "timeout", 0, "per-item download timeout (overrides download.poll_timeout)")

	rootCmd.AddCommand(runCmd, itemsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 加载配置文件并应用命令行覆盖
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("无法加载配置文件: %w", err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置错误: %w", err)
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config) {
	if downloadDir != "" {
		cfg.Download.Dir = downloadDir
	}
	if pollTimeout > 0 {
		cfg.Download.PollTimeout = pollTimeout
	}
	if period != "" {
		for i := range cfg.Portal.Filters {
			if cfg.Portal.Filters[i].Name == "period" {
				cfg.Portal.Filters[i].Value = period
			}
		}
	}
}
