package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/chatline-server/internal/app"
	"github.com/vovakirdan/chatline-server/internal/config"
	logpkg "github.com/vovakirdan/chatline-server/internal/log"
)

// Set via ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "chatline-server",
	Short:   "Real-time chat server",
	Long:    `chatline-server serves the chat REST API and the WebSocket gateway that fans chat events out to connected clients.`,
	Version: Version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("chatline-server %s (commit %s, built %s)\n", Version, Commit, BuildTime)
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("chatline-server %s (commit %s, built %s)\n", Version, Commit, BuildTime))

	serveCmd.Flags().String("config", "", "path to config file (default: ./config.yaml)")
	serveCmd.Flags().String("addr", "", "HTTP listen address, overrides config")
	serveCmd.Flags().String("env-file", ".env", "dotenv file loaded before config")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	addr, _ := cmd.Flags().GetString("addr")
	envFile, _ := cmd.Flags().GetString("env-file")

	bootLog := logpkg.New("info")
	config.LoadDotEnv(bootLog, envFile)

	cfg, resolvedPath, err := config.Load(bootLog, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.UpdateFrom(config.Config{Addr: addr})

	logger := logpkg.NewWithOptions(cfg.LogLevel, cfg.LogJSON, os.Stdout)
	logger.Info().
		Str("config", resolvedPath).
		Str("version", Version).
		Msg("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting chatline server")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
