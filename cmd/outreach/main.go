// cmd/outreach/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"outreach-engine/internal/common/config"
	"outreach-engine/internal/common/logger"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "outreach",
		Short:         "Run outreach campaigns and manage templates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (default: configs/config.yaml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		newRunCmd(g),
		newMigrateCmd(g),
		newTemplatesCmd(g),
	)
	return root
}

func (g *globalFlags) load() (*config.Config, logger.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadFromFile(g.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	// stdout carries command output; logs go to stderr.
	return cfg, logger.NewStructured(cfg.Logging.Level, "console", "stderr"), nil
}
