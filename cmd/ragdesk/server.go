package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kalambet/ragdesk/internal/config"
	"github.com/kalambet/ragdesk/internal/devserver"
	"github.com/kalambet/ragdesk/internal/logging"
	"github.com/kalambet/ragdesk/internal/mcpserver"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an in-memory RAG backend for local development (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		return runDevServer(cmd, port)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the session as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP(cmd)
	},
}

func init() {
	devserverCmd.Flags().Int("port", 0, "listen port (default devserver.port)")
}

func runDevServer(cmd *cobra.Command, port int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port <= 0 {
		port = cfg.DevServer.Port
	}

	level := cfg.Log.Level
	if level == "" || level == "warn" {
		level = "info"
	}
	logger, err := logging.New(logging.Config{Level: level, File: cfg.Log.File}, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv := &http.Server{
		Addr:    addr,
		Handler: devserver.NewHandler(devserver.Deps{Logger: logger}),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		printStep("ragdesk devserver %s listening on http://%s%s", version, addr, devserver.APIPrefix)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		printStep("shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(cmd *cobra.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.store.Initialize(ctx)

	s := mcpserver.New(mcpserver.Deps{
		Store:   a.store,
		Prober:  a.client,
		Notices: a.notices,
		Logger:  a.logger,
	})
	a.logger.Info("MCP server started (stdio transport)", zap.String("backend", a.cfg.API.BaseURL))
	return mcpserver.Serve(ctx, s, cmd.InOrStdin(), cmd.OutOrStdout())
}
