package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/sourcecheck/internal/logger"
	"github.com/ppiankov/sourcecheck/internal/pipeline"
	"github.com/ppiankov/sourcecheck/internal/server"
)

var (
	addr          string
	probeInterval time.Duration
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the verification API over HTTP",
	Long: `Serve starts an HTTP server exposing:
  POST /api/v1/validate   verify {source_text, claims, schema, policies}
  GET  /health            service state snapshot
  GET  /metrics           Prometheus metrics

Example:
  sourcecheck serve
  sourcecheck serve --addr :9000 --backend ollama`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr)")
	serveCmd.Flags().DurationVar(&probeInterval, "probe-interval", time.Minute, "how often the backend readiness is re-checked")
	serveCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the backend result cache")
	serveCmd.Flags().StringVar(&provider, "backend", "", "verification backend (lexical, openai, anthropic, ollama)")
	serveCmd.Flags().StringVar(&modelName, "model", "", "backend model for entailment classification")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = addr
	}

	engine, err := pipeline.NewEngineFromConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state := pipeline.NewStateHolder(Version, engine.Backend())
	state.Refresh(ctx, engine.Backend())
	go probeBackend(ctx, state, engine, probeInterval)

	srv := server.New(cfg.Server, engine, state)
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "✓ Listening on %s (backend: %s)\n", cfg.Server.Addr, engine.Backend().Name())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	fmt.Fprintf(os.Stderr, "Shutting down...\n")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// probeBackend republishes the service state until ctx ends
func probeBackend(ctx context.Context, state *pipeline.StateHolder, engine *pipeline.Engine, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			s := state.Refresh(probeCtx, engine.Backend())
			cancel()
			logger.Debug("backend %s ready=%v", s.Backend, s.BackendReady)
		}
	}
}
