package backend

import (
	"fmt"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/restgen/core"
	"github.com/relabs-tech/restgen/core/kss"
	"github.com/relabs-tech/restgen/core/logger"
	"github.com/relabs-tech/restgen/core/store"
)

// Backend is the generated REST backend of all configured domains
type Backend struct {
	domains []Domain
	router  *mux.Router
	// Routers holds the sub-router of every domain by name
	Routers map[string]*mux.Router
}

// Builder is a builder helper for the Backend
type Builder struct {
	// Config is the JSON configuration of all domains. Either Config or Domains is mandatory.
	Config string
	// Domains are the domains as Go values. They are installed after the ones in Config.
	Domains []Domain
	// Formatters attaches formatters to domains by name. They replace formatters set in Domains.
	Formatters map[string]Formatters
	// Adapter is the persistence adapter shared by all handlers. This is mandatory.
	Adapter store.Adapter
	// Router is the mux router for the API, typically a sub-router for the API prefix. This is mandatory.
	Router *mux.Router
	// KssDriver stores uploaded files. Without driver, files are handed to the input formatters only.
	KssDriver kss.Driver
	// Notifier receives successful mutations. This is optional.
	Notifier core.Notifier
	// OnResult and OnError replace the default finalizers
	OnResult Finalizer
	OnError  Finalizer
	// Postware runs after the handlers and before the finalizers, it may modify the staging record
	Postware []mux.MiddlewareFunc
}

// New realizes the actual backend. It adds one sub-router per domain to the router, in
// configuration order. Invalid configurations panic.
func New(bb *Builder) *Backend {
	if bb.Adapter == nil {
		panic("Adapter is missing")
	}
	if bb.Router == nil {
		panic("Router is missing")
	}

	var domains []Domain
	if bb.Config != "" {
		config, err := ParseConfiguration([]byte(bb.Config))
		if err != nil {
			panic(err)
		}
		domains = append(domains, config.Domains...)
	}
	domains = append(domains, bb.Domains...)

	for name, formatters := range bb.Formatters {
		found := false
		for i := range domains {
			if domains[i].Name == name {
				domains[i].Schemas.Formatters = formatters
				found = true
			}
		}
		if !found {
			panic(fmt.Errorf("formatters for unknown domain '%s'", name))
		}
	}

	config := Configuration{Domains: domains}
	if err := config.validate(); err != nil {
		panic(err)
	}

	b := &Backend{
		domains: domains,
		router:  bb.Router,
		Routers: make(map[string]*mux.Router, len(domains)),
	}

	b.router.Use(Finalize(bb.OnResult, bb.OnError))
	for _, postware := range bb.Postware {
		b.router.Use(postware)
	}

	logger.Default().Debugln("backend: install domain routes")
	for _, d := range domains {
		h := &domainHandlers{
			domain:     d.Name,
			schemas:    d.Schemas,
			formatters: d.Schemas.Formatters.normalized(),
			adapter:    bb.Adapter,
			kssDriver:  bb.KssDriver,
			notifier:   bb.Notifier,
		}
		b.Routers[d.Name] = domainRouter(b.router, h)
	}
	return b
}

// domainRouter mounts a new sub-router for the domain below parent and installs the handlers
func domainRouter(parent *mux.Router, h *domainHandlers) *mux.Router {
	router := parent.PathPrefix("/" + h.domain).Subrouter()
	h.install(router)
	return router
}

// Domains returns the installed domains in installation order
func (b *Backend) Domains() []Domain {
	return b.domains
}
