package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ragchat/internal/chat"
	"ragchat/internal/loader"
	"ragchat/internal/tui"
)

// logFile receives log output while the TUI owns the terminal.
const logFile = "ragchat.log"

func chatCmd(a *app) *cobra.Command {
	var chromaPath string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("chroma-path") {
				chromaPath = a.cfg.VectorStore.Path
			}
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer f.Close()
			a.logger = a.newLogger(f)

			engine, closeFn, err := a.newEngine(cmd, chromaPath)
			if err != nil {
				return err
			}
			defer closeFn()

			topics := a.topics()
			session := chat.NewSession(a.cfg.Chat.BotName, topics)
			a.logger.Info("chat session started", "session", session.ID, "index", chromaPath)

			m := tui.New(cmd.Context(), engine, session, topics, loader.PageText)
			if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run(); err != nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&chromaPath, "chroma-path", "chroma/", "directory of the persistent index")
	return cmd
}
