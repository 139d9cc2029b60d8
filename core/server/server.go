// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package server assembles a complete service around the generated backend

The root router carries, in this order, request ids, the access log, the preware,
the REST API below the API prefix, /version and /health, the views, the stored
files of the local file store and the static files. Handler wraps the router with
CORS, security headers and compression.

	s, err := server.New(ctx, &server.Builder{
		Service:    *service,
		Config:     configurationJSON,
		Formatters: map[string]backend.Formatters{"users": userFormatters},
	})
	if err != nil {
		panic(err)
	}
	s.ListenAndServe(ctx)
*/
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/restgen/core"
	"github.com/relabs-tech/restgen/core/backend"
	"github.com/relabs-tech/restgen/core/config"
	"github.com/relabs-tech/restgen/core/csql"
	"github.com/relabs-tech/restgen/core/kss"
	"github.com/relabs-tech/restgen/core/logger"
	"github.com/relabs-tech/restgen/core/notify"
	"github.com/relabs-tech/restgen/core/store"
	"github.com/relabs-tech/restgen/core/views"
)

const shutdownTimeout = 30 * time.Second

// Builder is a builder helper for the Server
type Builder struct {
	// Service are the settings, usually from config.Load
	Service config.Service
	// Config is the JSON configuration of the domains
	Config string
	// Domains are additional domains as Go values
	Domains []backend.Domain
	// Formatters attaches formatters to domains by name
	Formatters map[string]backend.Formatters
	// Pages are free standing view pages
	Pages []views.Page

	// Adapter replaces the database connection described by Service
	Adapter store.Adapter
	// KssDriver replaces the file store described by Service
	KssDriver kss.Driver
	// Notifier replaces the notifiers described by Service
	Notifier core.Notifier

	// Preware runs before the API handlers
	Preware []mux.MiddlewareFunc
	// Postware runs after the API handlers and before the finalizers
	Postware []mux.MiddlewareFunc
	// OnResult and OnError replace the default finalizers
	OnResult backend.Finalizer
	OnError  backend.Finalizer
}

// Server is an assembled service
type Server struct {
	Service config.Service
	Router  *mux.Router
	Backend *backend.Backend
	Adapter store.Adapter

	closers []io.Closer
}

// New builds the server. The database pool is opened once here and shared by
// all handlers. Invalid domain configurations panic, as backend.New does.
func New(ctx context.Context, bb *Builder) (*Server, error) {
	service := bb.Service
	level, err := service.Level()
	if err != nil {
		return nil, err
	}
	logger.InitLogger(service.Name, level)
	rlog := logger.Default()

	s := &Server{
		Service: service,
		Router:  mux.NewRouter(),
		Adapter: bb.Adapter,
	}

	if s.Adapter == nil {
		db, err := csql.Open(ctx, service.DBConfig())
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db)
		s.Adapter = store.FromDB(db)
	}

	kssDriver := bb.KssDriver
	if kssDriver == nil {
		kssDriver, err = kss.New(ctx, service.KssConfiguration())
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	notifier := bb.Notifier
	if notifier == nil {
		notifier, err = s.notifier(ctx)
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	s.Router.Use(logger.RequestIDMiddleware, logger.AccessLog)
	for _, preware := range bb.Preware {
		s.Router.Use(preware)
	}

	rlog.Infoln("mount API at", service.APIPrefix)
	apiRouter := s.Router.PathPrefix(service.APIPrefix).Subrouter()
	s.Backend = backend.New(&backend.Builder{
		Config:     bb.Config,
		Domains:    bb.Domains,
		Formatters: bb.Formatters,
		Adapter:    s.Adapter,
		Router:     apiRouter,
		KssDriver:  kssDriver,
		Notifier:   notifier,
		OnResult:   bb.OnResult,
		OnError:    bb.OnError,
		Postware:   bb.Postware,
	})

	// registered before the views, a domain named version or health must not shadow them
	s.handleVersion(s.Router)

	if renderer, err := views.NewRenderer(service.TemplateDir); err != nil {
		rlog.WithError(err).Warnln("views are disabled")
	} else {
		v := views.New(renderer, s.Adapter)
		for _, d := range s.Backend.Domains() {
			v.Domain(s.Router, d.Name, d.Views)
		}
		v.Pages(s.Router, bb.Pages)
	}

	if local, ok := kssDriver.(*kss.LocalFilesystem); ok && service.KssMountPath != "" {
		local.Mount(s.Router, service.KssMountPath)
	}

	if service.StaticDir != "" {
		rlog.Infoln("serve static files from", service.StaticDir)
		s.Router.PathPrefix("/").Methods(http.MethodGet, http.MethodHead).
			Handler(http.FileServer(http.Dir(service.StaticDir)))
	}
	return s, nil
}

// notifier returns the notifiers enabled in the service settings, nil if there are none
func (s *Server) notifier(ctx context.Context) (core.Notifier, error) {
	var fanout notify.Fanout
	if brokers := s.Service.Brokers(); len(brokers) > 0 {
		k := notify.NewKafka(brokers, s.Service.KafkaTopic)
		s.closers = append(s.closers, k)
		fanout = append(fanout, k)
	}
	if s.Service.SQSQueueURL != "" {
		q, err := notify.NewSQS(ctx, s.Service.AWSRegion, s.Service.SQSQueueURL)
		if err != nil {
			return nil, err
		}
		fanout = append(fanout, q)
	}
	switch len(fanout) {
	case 0:
		return nil, nil
	case 1:
		return fanout[0], nil
	}
	return fanout, nil
}

// Handler returns the router wrapped with CORS, security headers and compression
func (s *Server) Handler() http.Handler {
	return backend.CORS(backend.SecurityHeaders(backend.Compression(s.Router)))
}

// Close releases the database pool and the notifiers
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// ListenAndServe serves until ctx is cancelled or the process receives SIGINT or SIGTERM,
// then shuts down gracefully and closes the server.
func (s *Server) ListenAndServe(ctx context.Context) error {
	rlog := logger.Default()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              s.Service.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rlog.Infoln("listen on", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	rlog.Infoln("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if closeErr := s.Close(); err == nil {
		err = closeErr
	}
	return err
}
