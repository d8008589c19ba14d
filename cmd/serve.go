package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/place-engineering/sitelayers/internal/model"
	"github.com/place-engineering/sitelayers/internal/pipeline"
	"github.com/place-engineering/sitelayers/internal/store"
)

var servePort int

// scriptRunner is the subset of *pipeline.Runner the server needs.
type scriptRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server for script requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// progress lines are for the CLI; the server logs instead
		env, err := initRunner(ctx, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env.Runner, env.Store, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter mounts the API. Script runs are serialized so the fetch
// pipeline stays sequential. st may be nil, in which case the run history
// routes answer 404.
func buildRouter(runner scriptRunner, st store.Store, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	var mu sync.Mutex
	r.Post("/v1/scripts", func(w http.ResponseWriter, req *http.Request) {
		var body pipeline.Request
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Address == "" {
			writeError(w, http.StatusBadRequest, "address is required")
			return
		}

		res, err := func() (*pipeline.Result, error) {
			mu.Lock()
			defer mu.Unlock()
			return runner.Run(req.Context(), body)
		}()
		if err != nil {
			zap.L().Error("script run failed",
				zap.String("address", body.Address),
				zap.String("request_id", middleware.GetReqID(req.Context())),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		status := http.StatusOK
		if res.Outcome == model.OutcomeAddressNotFound {
			status = http.StatusNotFound
		}
		writeJSON(w, status, res)
	})

	r.Get("/v1/runs", func(w http.ResponseWriter, req *http.Request) {
		if st == nil {
			writeError(w, http.StatusNotFound, "run history is disabled")
			return
		}
		q := req.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		runs, err := st.ListRuns(req.Context(), store.RunFilter{
			Outcome: model.Outcome(q.Get("outcome")),
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if runs == nil {
			runs = []model.RunRecord{}
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/v1/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		if st == nil {
			writeError(w, http.StatusNotFound, "run history is disabled")
			return
		}
		run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
