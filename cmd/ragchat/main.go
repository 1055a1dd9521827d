package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ragchat/internal/config"
)

// app carries what every subcommand needs once the root flags are parsed.
type app struct {
	configPath string
	verbose    bool

	cfg    *config.AppConfig
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "ragchat",
		Short:         "Chat with your PDFs",
		Long:          "ragchat indexes a directory of PDFs and answers questions grounded in them, one conversation per topic.",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			return a.loadConfig()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to config.yaml (default: ./config.yaml or ~/.config/ragchat/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(populateCmd(a))
	root.AddCommand(askCmd(a))
	root.AddCommand(chatCmd(a))
	return root
}

func (a *app) loadConfig() error {
	var err error
	if a.configPath == "" {
		a.cfg, _, err = config.LoadDefault()
	} else {
		a.cfg, err = config.Load(a.configPath)
	}
	if err != nil {
		return err
	}
	a.logger = a.newLogger(os.Stderr)
	return nil
}

func (a *app) newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
