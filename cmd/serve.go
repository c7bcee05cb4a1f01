package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and run webhook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", resolvePort(servePort, cfg.Server.Port)),
			Handler: buildMux(ctx, env),
		}
		return startServer(ctx, srv)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildMux assembles the HTTP routes. runCtx outlives individual requests
// and bounds webhook-triggered pipeline runs to the server lifetime.
func buildMux(runCtx context.Context, env *pipelineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
		filter := store.RunFilter{Limit: 50}
		if v := req.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				filter.Limit = n
			}
		}
		if v := req.URL.Query().Get("status"); v != "" {
			filter.Status = model.RunStatus(v)
		}

		runs, err := env.Store.ListRuns(req.Context(), filter)
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list runs failed"})
			return
		}
		if runs == nil {
			runs = []model.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/api/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")

		run, err := env.Store.GetRun(req.Context(), id)
		if errors.Is(err, store.ErrRunNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		if err != nil {
			zap.L().Error("get run failed", zap.String("run_id", id), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "get run failed"})
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	r.Post("/webhook/run", func(w http.ResponseWriter, req *http.Request) {
		if env.Pipeline == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "pipeline not initialized"})
			return
		}

		run, err := env.Store.CreateRun(req.Context())
		if err != nil {
			zap.L().Error("webhook create run failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "create run failed"})
			return
		}

		// Run asynchronously; the record tracks the outcome.
		go func() {
			report, err := executeRun(runCtx, env, run)
			if err != nil {
				zap.L().Error("webhook run failed", zap.String("run_id", run.ID), zap.Error(err))
				return
			}
			zap.L().Info("webhook run complete",
				zap.String("run_id", run.ID),
				zap.Int("succeeded", report.Succeeded),
				zap.Int("failed", report.Failed),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"run_id": run.ID,
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// resolvePort picks the --port flag when set, else the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort > 0 {
		return flagPort
	}
	return cfgPort
}

// startServer runs srv until ctx is canceled, then shuts it down gracefully.
func startServer(ctx context.Context, srv *http.Server) error {
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}
