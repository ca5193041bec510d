package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/prosora/config"
	srv "github.com/mohammad-safakhou/prosora/internal/server"
)

func main() {
	var configPath string
	var root = &cobra.Command{Use: "prosorad"}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return srv.Run(config.LoadConfig(configPath))
		},
	}

	var learn = &cobra.Command{
		Use:   "learn",
		Short: "Run the feedback worker consuming performance events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return srv.RunLearner(config.LoadConfig(configPath))
		},
	}

	var migDir string
	var direction string
	var steps int
	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(configPath)
			return srv.Migrate(migDir, cfg.Storage.Postgres, direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source (file://migrations)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	root.AddCommand(serve, learn, migrate)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
