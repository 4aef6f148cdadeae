package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/masksync/pkg/convert"
	"github.com/cyclopcam/masksync/pkg/framestore"
	"github.com/cyclopcam/masksync/pkg/sequence"
	"github.com/cyclopcam/masksync/pkg/storage"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"gorm.io/gorm"
)

// Server is the backend of the annotation editor
type Server struct {
	Log       logs.Log
	DB        *gorm.DB
	Store     *framestore.Store
	Converter *convert.Converter
	Workers   int

	signalIn   chan os.Signal
	httpServer *http.Server
	httpRouter *httprouter.Router
	wsUpgrader websocket.Upgrader

	// Held for the duration of any operation that writes annotations or masks.
	// Chained conversion of frame N reads the annotation of N-1, so writers must not interleave.
	writeLock sync.Mutex
}

func NewServer(configFile string) (*Server, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	logger, err := logs.NewLog()
	if err != nil {
		return nil, err
	}
	return NewServerFromConfig(logger, cfg)
}

func NewServerFromConfig(logger logs.Log, cfg *Config) (*Server, error) {
	db, err := openDB(logger, cfg.DB)
	if err != nil {
		return nil, err
	}

	// Open blob store
	var root storage.Storage
	if cfg.Storage.GCS != nil {
		// Google Cloud Storage
		root, err = storage.NewStorageGCS(logger, cfg.Storage.GCS.Bucket)
		if err != nil {
			return nil, err
		}
	} else if cfg.Storage.Filesystem != nil {
		// Filesystem
		root, err = storage.NewStorageFS(logger, cfg.Storage.Filesystem.Root)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, fmt.Errorf("One of the storage options must be configured (i.e. either 'filesystem' or 'gcs')")
	}

	settings, err := convert.LoadSettings(cfg.Settings)
	if err != nil {
		return nil, err
	}
	converter, err := convert.NewConverter(logger, settings)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Log:       logger,
		DB:        db,
		Store:     framestore.NewStore(logger, root, cfg.Layout),
		Converter: converter,
		Workers:   cfg.Workers,
	}
	s.setupHttpRoutes()
	return s, nil
}

// Handler exposes the router, for tests
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

func (s *Server) newRunner(options sequence.Options) *sequence.Runner {
	if options.Workers == 0 {
		options.Workers = s.Workers
	}
	return sequence.NewRunner(s.Log, s.Converter, s.Store, options)
}

// port example: ":8081"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) ListenForKillSignals() {
	s.Log.Infof("ListenForKillSignals starting")
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. ListenForKillSignals will exit after shutdown", sig.String())
			s.Shutdown()
		} else {
			// Shutdown() was called by something other than ourselves, and closed signalIn
			s.Log.Infof("signalIn closed. ListenForKillSignals will exit now")
		}
	}()
}

func (s *Server) Shutdown() {
	s.Log.Infof("Shutdown")
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
		s.signalIn = nil
	}
	var err error
	if s.httpServer != nil {
		s.Log.Infof("Closing HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = s.httpServer.Shutdown(ctx)
		cancel()
	}
	if sqlDB, dbErr := s.DB.DB(); dbErr == nil {
		sqlDB.Close()
	}
	if err != nil {
		s.Log.Warnf("Shutdown complete, with error: %v", err)
	} else {
		s.Log.Infof("Shutdown complete")
	}
	s.Log.Close()
}
