/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// hello-loadgen drives open-loop load against the HelloService:
// steady, burst and recovery phases at fixed rates, optionally followed by an endless steady loop.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/acronis/grpc-backpressure-lab/config"
	"github.com/acronis/grpc-backpressure-lab/internal/appinfo"
	"github.com/acronis/grpc-backpressure-lab/internal/loadgen"
	"github.com/acronis/grpc-backpressure-lab/log"
	"github.com/acronis/grpc-backpressure-lab/service"
)

const envVarsPrefix = "hello"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "hello-loadgen",
		Short:        "Open-loop load generator for the HelloService",
		Version:      appinfo.GetVersion(),
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to an optional YAML or JSON configuration file")
	return cmd
}

func run(configPath string) error {
	cfg := loadgen.NewAppConfig()
	if err := config.NewDefaultLoader(envVarsPrefix).LoadFromOptionalFile(configPath, cfg); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if cfg.Log.Component == "" {
		cfg.Log.Component = "hello-loadgen"
	}
	logger, closeLogger := log.NewLogger(cfg.Log)
	defer closeLogger()

	unit, err := loadgen.NewUnit(cfg, logger)
	if err != nil {
		logger.Error("failed to create load generator", log.Error(err))
		return err
	}
	return service.New(logger, unit).Start()
}
