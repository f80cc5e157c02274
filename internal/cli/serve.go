package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arialive/memcore/internal/server"
	"github.com/spf13/cobra"
)

var serveSystemPrompt string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the websocket chat gateway",
	Long: `Run the websocket chat gateway.

Clients connect to ws://<addr>/ws?user=<identifier>; each connection is
one memory session. /healthz and /stats are served over plain HTTP.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveSystemPrompt, "system-prompt",
		"You are a friendly streaming companion. Stay in character and use what you know about the viewer.",
		"base system prompt prepended to every assembled context")
}

func runServe(cmd *cobra.Command, args []string) error {
	svc, model, err := buildService()
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:         cfg.ListenAddr,
		SystemPrompt: serveSystemPrompt,
	}, svc, model, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
