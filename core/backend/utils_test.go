// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend_test

import (
	"context"
	"sync"
	"testing"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/restgen/core"
	"github.com/relabs-tech/restgen/core/backend"
	"github.com/relabs-tech/restgen/core/client"
	"github.com/relabs-tech/restgen/core/logger"
	"github.com/relabs-tech/restgen/core/store"
)

// TestService is a backend on an in-memory store, reachable through an in-process client
type TestService struct {
	Router  *mux.Router
	Memory  *store.Memory
	Backend *backend.Backend
	Client  client.Client
}

// CreateTestService creates a backend below /api. modify may complete the builder.
func CreateTestService(t *testing.T, config string, modify ...func(*backend.Builder)) *TestService {
	t.Helper()
	s := TestService{
		Router: mux.NewRouter(),
		Memory: store.NewMemory(),
	}
	s.Router.Use(logger.RequestIDMiddleware)

	builder := backend.Builder{
		Config:  config,
		Adapter: s.Memory,
		Router:  s.Router.PathPrefix("/api").Subrouter(),
	}
	for _, m := range modify {
		m(&builder)
	}
	s.Backend = backend.New(&builder)
	s.Client = client.NewWithRouter(s.Router)
	return &s
}

// Domain returns a client for domain below /api
func (s *TestService) Domain(name string) client.Domain {
	return s.Client.Domain("/api", name)
}

type notification struct {
	Domain    string
	Operation core.Operation
	Payload   string
}

type recordingNotifier struct {
	mutex         sync.Mutex
	notifications []notification
}

func (n *recordingNotifier) Notify(ctx context.Context, domain string, operation core.Operation, payload []byte) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.notifications = append(n.notifications, notification{domain, operation, string(payload)})
	return nil
}

func (n *recordingNotifier) all() []notification {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return append([]notification(nil), n.notifications...)
}
