package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/victornm/millionaire/internal/config"
	"github.com/victornm/millionaire/internal/leaderboard"
	"github.com/victornm/millionaire/internal/server"
	"github.com/victornm/millionaire/internal/telemetry"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "millionaire",
		Short:         "Trivia ladder game service",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(configPath)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to the config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP and gRPC servers",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(configPath)
			},
		},
		standingsCmd(&configPath),
	)

	return root
}

func standingsCmd(configPath *string) *cobra.Command {
	var (
		filter string
		viewer string
		team   string
	)

	cmd := &cobra.Command{
		Use:   "standings",
		Short: "Print the current leaderboard as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			telemetry.SetupLogger(c.Log.Level, c.Log.Format)

			f, err := leaderboard.ParseFilter(filter)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			lb, err := server.Standings(ctx, c, leaderboard.GetLeaderboardRequest{
				Filter:     f,
				Viewer:     viewer,
				ViewerTeam: team,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(lb)
		},
	}

	cmd.Flags().StringVar(&filter, "filter", string(leaderboard.FilterAll), "all, team or completed")
	cmd.Flags().StringVar(&viewer, "viewer", "", "username to highlight")
	cmd.Flags().StringVar(&team, "team", "", "team name for the team filter")

	return cmd
}

func serve(configPath string) error {
	c, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
	return nil
}

func loadConfig(p string) (server.Config, error) {
	c := server.DefaultConfig()

	if err := config.Load(p, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}
