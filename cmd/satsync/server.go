package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"satsync/internal/codec"
	"satsync/internal/constants"
	apperrors "satsync/internal/errors"
	"satsync/internal/metrics"
	"satsync/internal/middleware"
	"satsync/internal/service"
	"satsync/internal/tracing"
)

// commandSender submits commands on demand. *service.Engine implements it.
type commandSender interface {
	Submit(ctx context.Context, req service.SubmitRequest) (int64, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	router  *mux.Router
	logger  *logrus.Logger
	sender  commandSender
	store   pinger
	metrics *metrics.Metrics
	events  http.Handler
	signer  *middleware.Signer
	port    int
	server  *http.Server
}

func NewServer(port int, sender commandSender, store pinger, m *metrics.Metrics, events http.Handler, signer *middleware.Signer, logger *logrus.Logger) *Server {
	if port <= 0 {
		port = constants.DefaultServerPort
	}
	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		sender:  sender,
		store:   store,
		metrics: m,
		events:  events,
		signer:  signer,
		port:    port,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger, s.metrics))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RequireAuth(s.signer))
	api.HandleFunc("/commands", s.handleListCommands()).Methods(http.MethodGet)
	api.HandleFunc("/commands", s.handleSubmitCommand()).Methods(http.MethodPost)
	if s.events != nil {
		api.Handle("/events", s.events).Methods(http.MethodGet)
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.WithField("port", s.port).Info("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.store.Ping(ctx); err != nil {
			s.logger.WithFields(tracing.Fields(r.Context())).WithError(err).Warn("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Error: "database unreachable"})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

type commandInfo struct {
	Name string `json:"name"`
	SIN  int    `json:"sin"`
	MIN  int    `json:"min"`
}

func (s *Server) handleListCommands() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names := codec.Commands()
		out := make([]commandInfo, 0, len(names))
		for _, name := range names {
			cmd, _ := codec.LookupCommand(name)
			out = append(out, commandInfo{Name: cmd.Name, SIN: cmd.SIN, MIN: cmd.MIN})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"commands": out})
	}
}

type submitResponse struct {
	ForwardID int64  `json:"forward_id"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleSubmitCommand() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := tracing.RequestID(ctx)

		r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodyBytes)
		var req service.SubmitRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			s.writeError(w, requestID, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid request body").
				WithUserMessage("Request body must be a JSON submit request"))
			return
		}

		if claims, ok := middleware.ClaimsFrom(ctx); ok {
			s.logger.WithFields(service.SubmitLogFields(ctx, req)).
				WithField("operator", claims.Operator).
				Info("Command requested")
		}

		id, err := s.sender.Submit(ctx, req)
		if err != nil {
			s.writeError(w, requestID, err)
			return
		}
		writeJSON(w, http.StatusCreated, submitResponse{ForwardID: id, RequestID: requestID})
	}
}

func (s *Server) writeError(w http.ResponseWriter, requestID string, err error) {
	writeJSON(w, apperrors.HTTPStatusCode(err), apperrors.ToHTTPResponse(err, requestID))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
