package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethpandaops/perfstor/pkg/api/ingester"
	"github.com/ethpandaops/perfstor/pkg/api/storage"
	"github.com/ethpandaops/perfstor/pkg/api/store"
	"github.com/ethpandaops/perfstor/pkg/config"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	store      store.Store
	views      *views
	ingester   ingester.Ingester
	httpServer *http.Server
	wg         sync.WaitGroup
	done       chan struct{}
}

// NewServer creates a new server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
) Server {
	return &server{
		log:   log.WithField("component", "api"),
		cfg:   cfg,
		views: mustParseViews(),
		done:  make(chan struct{}),
	}
}

// Start opens the store, prepares the optional ingester and starts the
// HTTP server.
func (s *server) Start(ctx context.Context) error {
	s.store = store.NewStore(s.log, &s.cfg.Database)
	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	if s.cfg.Ingest.Enabled {
		if err := s.prepareIngest(); err != nil {
			return fmt.Errorf("preparing ingest: %w", err)
		}
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("HTTP server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	// Start the ingester after the server is listening so the UI is
	// reachable while the first pass runs.
	if s.ingester != nil {
		if err := s.ingester.Start(ctx); err != nil {
			return fmt.Errorf("starting ingester: %w", err)
		}
	}

	return nil
}

// Stop gracefully shuts down the HTTP server, the ingester and the store.
func (s *server) Stop() error {
	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.ingester != nil {
		if err := s.ingester.Stop(); err != nil {
			s.log.WithError(err).Warn("Ingester stop error")
		}
	}

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	s.log.Info("Server stopped")

	return nil
}

// prepareIngest creates the storage backend and ingester without starting
// the background goroutine.
func (s *server) prepareIngest() error {
	backend, err := storage.New(s.log, &s.cfg.Storage)
	if err != nil {
		return err
	}

	interval, err := s.cfg.Ingest.IntervalDuration()
	if err != nil {
		return fmt.Errorf("parsing ingest interval: %w", err)
	}

	s.ingester = ingester.NewIngester(
		s.log, s.store, backend,
		s.cfg.Ingest.Prefix, interval, s.cfg.Ingest.Concurrency,
	)

	s.log.Info("Ingest service enabled")

	return nil
}
