package main

import (
	"fmt"
	"os"

	"github.com/aretw0/baton/internal/cli"
	"github.com/aretw0/baton/pkg/config"
	"github.com/aretw0/baton/pkg/domain"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "baton",
	Short: "Baton runs implicit staged pipelines",
	Long: `Baton runs pipelines of independently deployed stages that only share a blob store
and a naming table. Each stage reads its inputs, computes, writes its outputs and hands
the baton to the next stage.

Configuration is read from the environment (optionally prefixed with BATON_);
flags override it.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("graph", "", "Stage graph file (YAML or JSON)")
	rootCmd.PersistentFlags().String("store", "", "Blob store: minio, file, redis or memory")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
}

// loadConfig reads the environment configuration and applies the flags on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("graph") {
		cfg.Graph, _ = flags.GetString("graph")
	}
	if flags.Changed("store") {
		cfg.Store, _ = flags.GetString("store")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if f := flags.Lookup("stage"); f != nil && f.Changed {
		cfg.Stage = f.Value.String()
	}
	return cfg, nil
}

func loadEnv(cmd *cobra.Command) (*cli.Env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return cli.Load(cfg)
}

// loadGraph is loadEnv for commands that never touch a backend.
func loadGraph(cmd *cobra.Command) (*domain.StageGraph, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return cli.LoadGraph(cfg)
}
