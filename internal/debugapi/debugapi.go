// Package debugapi serves health, metrics and per-owner sync status over HTTP.
package debugapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/blobcache"
	"github.com/dmitrijs2005/clipsync/internal/logging"
	"github.com/dmitrijs2005/clipsync/internal/relay"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Inspector reports what a process knows about its owners.
type Inspector interface {
	Owners() []string
	Status(owner string) (relay.OwnerStatus, bool)
}

// Controller lets an operator drive owner presence on an edge node.
type Controller interface {
	Join(ctx context.Context, owner string) error
	Leave(ctx context.Context, owner string) error
	Supersede(ctx context.Context, owner string) error
}

// HashHeader carries the content hash of a clipboard body.
const HashHeader = "X-Clipboard-Hash"

type Service struct {
	address     string
	inspector   Inspector
	controller  Controller
	blobs       relay.Coordinator
	maxBlobSize int64
	registry    *prometheus.Registry
	logger      logging.Logger
	router      *mux.Router
}

type Option func(*Service)

// WithBlobs routes reads and replacements of an owner's canonical clipboard
// to c. Bodies above maxSize bytes are refused.
func WithBlobs(c relay.Coordinator, maxSize int) Option {
	return func(s *Service) {
		s.blobs = c
		s.maxBlobSize = int64(maxSize)
	}
}

// New builds the service. controller may be nil, in which case the owner
// actions are not routed.
func New(address string, in Inspector, ctl Controller, reg *prometheus.Registry, l logging.Logger, opts ...Option) *Service {
	s := &Service{
		address:    address,
		inspector:  in,
		controller: ctl,
		registry:   reg,
		logger:     l.With("module", "debugapi"),
	}
	for _, o := range opts {
		o(s)
	}
	s.router = s.newRouter()
	return s
}

func (s *Service) newRouter() *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusNotFound, errorResponse{Message: "not found"})
	})

	router.Handle("/metrics", promhttp.InstrumentMetricHandler(s.registry,
		promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))).Methods(http.MethodGet)
	router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/owners", s.ownersHandler).Methods(http.MethodGet)
	router.HandleFunc("/owners/{owner}", s.ownerHandler).Methods(http.MethodGet)

	if s.controller != nil {
		router.HandleFunc("/owners/{owner}/join", s.actionHandler(s.controller.Join)).Methods(http.MethodPost)
		router.HandleFunc("/owners/{owner}/leave", s.actionHandler(s.controller.Leave)).Methods(http.MethodPost)
		router.HandleFunc("/owners/{owner}/supersede", s.actionHandler(s.controller.Supersede)).Methods(http.MethodPost)
	}
	if s.blobs != nil {
		router.HandleFunc("/owners/{owner}/clipboard", s.getClipboardHandler).Methods(http.MethodGet)
		router.HandleFunc("/owners/{owner}/clipboard", s.putClipboardHandler).Methods(http.MethodPut)
	}
	return router
}

func (s *Service) Handler() http.Handler { return s.router }

// Run serves until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting debug API", "address", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorResponse struct {
	Message string `json:"message"`
}

type healthResponse struct {
	Status string `json:"status"`
	Owners int    `json:"owners"`
}

type ownersResponse struct {
	Owners []relay.OwnerStatus `json:"owners"`
}

func (s *Service) healthHandler(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, healthResponse{Status: "ok", Owners: len(s.inspector.Owners())})
}

func (s *Service) ownersHandler(w http.ResponseWriter, _ *http.Request) {
	out := ownersResponse{Owners: []relay.OwnerStatus{}}
	for _, o := range s.inspector.Owners() {
		if st, ok := s.inspector.Status(o); ok {
			out.Owners = append(out.Owners, st)
		}
	}
	respond(w, http.StatusOK, out)
}

func (s *Service) ownerHandler(w http.ResponseWriter, r *http.Request) {
	st, ok := s.inspector.Status(mux.Vars(r)["owner"])
	if !ok {
		respond(w, http.StatusNotFound, errorResponse{Message: "owner not found"})
		return
	}
	respond(w, http.StatusOK, st)
}

func (s *Service) actionHandler(action func(context.Context, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := mux.Vars(r)["owner"]
		if err := action(r.Context(), owner); err != nil {
			s.logger.Warn(r.Context(), "owner action failed", "owner", owner, "path", r.URL.Path, "error", err)
			respond(w, http.StatusBadGateway, errorResponse{Message: err.Error()})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Service) getClipboardHandler(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	hash, ok, err := s.blobs.PullHash(r.Context(), owner)
	if err != nil {
		respond(w, http.StatusBadGateway, errorResponse{Message: err.Error()})
		return
	}
	if !ok {
		respond(w, http.StatusNotFound, errorResponse{Message: "no clipboard"})
		return
	}
	data, ok, err := s.blobs.Pull(r.Context(), owner)
	if err != nil {
		respond(w, http.StatusBadGateway, errorResponse{Message: err.Error()})
		return
	}
	if !ok {
		respond(w, http.StatusNotFound, errorResponse{Message: "no clipboard"})
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set(HashHeader, hash)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Service) putClipboardHandler(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBlobSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond(w, http.StatusRequestEntityTooLarge, errorResponse{Message: "clipboard too large"})
			return
		}
		respond(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}
	if len(data) == 0 {
		respond(w, http.StatusBadRequest, errorResponse{Message: "empty clipboard"})
		return
	}

	hash := blobcache.HashOf(data)
	if err := s.blobs.Push(r.Context(), owner, data, hash); err != nil {
		s.logger.Warn(r.Context(), "clipboard push failed", "owner", owner, "error", err)
		respond(w, http.StatusBadGateway, errorResponse{Message: err.Error()})
		return
	}
	s.logger.Info(r.Context(), "clipboard replaced", "owner", owner, "bytes", len(data), "hash", hash)
	w.Header().Set(HashHeader, hash)
	w.WriteHeader(http.StatusNoContent)
}

func respond(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
