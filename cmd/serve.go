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
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/broker-verify/internal/model"
	"github.com/sells-group/broker-verify/internal/reliability"
	"github.com/sells-group/broker-verify/internal/store"
	"github.com/sells-group/broker-verify/internal/verify"
)

var servePort int

const verifyRequestTimeout = 2 * time.Minute

type brokerVerifier interface {
	VerifyBroker(ctx context.Context, broker model.Broker, opts verify.Options) (*model.VerificationResult, error)
}

// serverDeps are the collaborators behind the HTTP API.
type serverDeps struct {
	Verifier    brokerVerifier
	Reliability *reliability.Manager
	Store       store.Store
	Defaults    verify.Options
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the verification API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		cfg.Server.Port = port

		env, err := initVerifier(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: newRouter(serverDeps{
				Verifier:    env.Verifier,
				Reliability: env.Reliability,
				Store:       env.Store,
				Defaults:    cfg.Verify.Options(),
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

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

func newRouter(deps serverDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/verify", deps.handleVerify)
	r.Route("/sources", func(r chi.Router) {
		r.Get("/", deps.handleSources)
		r.Get("/recommended", deps.handleRecommended)
		r.Get("/metrics", deps.handleMetrics)
	})
	r.Get("/discrepancies", deps.handleDiscrepancies)
	return r
}

type verifyRequest struct {
	Broker  model.Broker    `json:"broker"`
	Options json.RawMessage `json:"options,omitempty"`
}

func (d serverDeps) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	opts := d.Defaults
	if len(req.Options) > 0 {
		if err := json.Unmarshal(req.Options, &opts); err != nil {
			writeError(w, http.StatusBadRequest, "invalid options")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), verifyRequestTimeout)
	defer cancel()

	res, err := d.Verifier.VerifyBroker(ctx, req.Broker, opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeResponse(w, http.StatusOK, res)
}

func (d serverDeps) handleSources(w http.ResponseWriter, r *http.Request) {
	var (
		sources []model.DataSource
		err     error
	)
	if c := r.URL.Query().Get("category"); c != "" {
		sources, err = d.Reliability.GetSourcesByCategory(r.Context(), model.SourceCategory(c))
	} else {
		sources, err = d.Reliability.GetAllSources(r.Context())
	}
	if err != nil {
		writeServerError(w, "list sources", err)
		return
	}
	writeResponse(w, http.StatusOK, orEmpty(sources))
}

func (d serverDeps) handleRecommended(w http.ResponseWriter, r *http.Request) {
	purpose := r.URL.Query().Get("purpose")
	if purpose == "" {
		purpose = string(reliability.PurposeReview)
	}
	sources, err := d.Reliability.GetRecommendedSources(r.Context(), reliability.Purpose(purpose))
	if err != nil {
		writeServerError(w, "recommended sources", err)
		return
	}
	writeResponse(w, http.StatusOK, orEmpty(sources))
}

func (d serverDeps) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := d.Reliability.GetReliabilityMetrics(r.Context())
	if err != nil {
		writeServerError(w, "reliability metrics", err)
		return
	}
	writeResponse(w, http.StatusOK, m)
}

func (d serverDeps) handleDiscrepancies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.DiscrepancyFilter{
		BrokerID: q.Get("broker_id"),
		Field:    q.Get("field"),
		Severity: model.Severity(q.Get("severity")),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	if s := q.Get("since"); s != "" {
		if filter.Since, err = time.Parse(time.RFC3339, s); err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
	}

	rows, err := d.Store.ListDiscrepancies(r.Context(), filter)
	if err != nil {
		writeServerError(w, "list discrepancies", err)
		return
	}
	writeResponse(w, http.StatusOK, orEmpty(rows))
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeResponse(w, status, map[string]string{"error": msg})
}

func writeServerError(w http.ResponseWriter, action string, err error) {
	zap.L().Error("serve: "+action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, action+" failed")
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
