/*
Package views renders server side CRUD pages for the generated domains

Every domain gets the routes

	GET /<domain>/create       create form, template default_create
	GET /<domain>              list, template default_read_many, data "list"
	GET /<domain>/{id}         single item, template default_read_one, data "item"
	GET /<domain>/{id}/edit    edit form, template default_update, data "item"
	GET /<domain>/{id}/delete  delete confirmation, template default_destroy, data "item"

Templates are html/template files <dir>/<template>.html. The static data of a view is
merged into the template data. An item which does not exist is rendered as nil.
*/
package views

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/restgen/core"
	"github.com/relabs-tech/restgen/core/logger"
	"github.com/relabs-tech/restgen/core/store"
)

const defaultLimit = 50

// Renderer renders the templates of a template directory
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses all *.html templates in dir
func NewRenderer(dir string) (*Renderer, error) {
	templates, err := template.ParseGlob(filepath.Join(dir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("cannot parse templates in %s: %w", dir, err)
	}
	return &Renderer{templates: templates}, nil
}

// NewRendererFromTemplates returns a renderer for already parsed templates. Template
// names must carry the .html suffix.
func NewRendererFromTemplates(templates *template.Template) *Renderer {
	return &Renderer{templates: templates}
}

// Render renders template name into w. Nothing is written if rendering fails.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data interface{}) error {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name+".html", data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Views mounts the view routes of domains and pages
type Views struct {
	renderer *Renderer
	adapter  store.Adapter
}

// New returns views rendering with renderer and reading rows through adapter
func New(renderer *Renderer, adapter store.Adapter) *Views {
	return &Views{renderer: renderer, adapter: adapter}
}

// Domain installs the view routes of domain on router
func (v *Views) Domain(router *mux.Router, domain string, config Config) {
	logger.Default().Debugln("  handle view routes:", "/"+domain)
	base := "/" + domain

	router.HandleFunc(base+"/create", func(w http.ResponseWriter, r *http.Request) {
		v.render(w, r, config.View(core.OperationCreate), nil)
	}).Methods(http.MethodGet)

	router.HandleFunc(base, func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r)
		list, err := v.adapter.SelectRows(r.Context(), domain, store.AllFields, nil, limit, offset)
		if err != nil {
			logger.FromContext(r.Context()).WithError(err).Errorf("Error 4801: cannot list %s", domain)
			http.Error(w, "Error 4801", http.StatusInternalServerError)
			return
		}
		v.render(w, r, config.View(core.OperationReadMany), map[string]interface{}{"list": list})
	}).Methods(http.MethodGet)

	item := func(operation core.Operation) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			row, err := v.adapter.SelectOne(r.Context(), domain, store.ByID(mux.Vars(r)["id"]), store.AllFields)
			if err != nil {
				logger.FromContext(r.Context()).WithError(err).Errorf("Error 4802: cannot read %s", domain)
				http.Error(w, "Error 4802", http.StatusInternalServerError)
				return
			}
			data := map[string]interface{}{"item": nil}
			if row != nil {
				data["item"] = row
			}
			v.render(w, r, config.View(operation), data)
		}
	}
	router.HandleFunc(base+"/{id}", item(core.OperationReadOne)).Methods(http.MethodGet)
	router.HandleFunc(base+"/{id}/edit", item(core.OperationUpdate)).Methods(http.MethodGet)
	router.HandleFunc(base+"/{id}/delete", item(core.OperationDestroy)).Methods(http.MethodGet)
}

// Page is a free standing page. Data is optional and computes the template data per request.
type Page struct {
	Path     string
	Template string
	Data     func(ctx context.Context, adapter store.Adapter) (map[string]interface{}, error)
}

// Pages installs GET routes for pages on router
func (v *Views) Pages(router *mux.Router, pages []Page) {
	for _, p := range pages {
		page := p
		logger.Default().Debugln("  handle page route:", page.Path)
		router.HandleFunc(page.Path, func(w http.ResponseWriter, r *http.Request) {
			data := map[string]interface{}{}
			if page.Data != nil {
				var err error
				data, err = page.Data(r.Context(), v.adapter)
				if err != nil {
					logger.FromContext(r.Context()).WithError(err).Errorf("Error 4803: cannot compute data for page %s", page.Path)
					http.Error(w, "Error 4803", http.StatusInternalServerError)
					return
				}
			}
			if err := v.renderer.Render(w, http.StatusOK, page.Template, data); err != nil {
				logger.FromContext(r.Context()).WithError(err).Errorf("Error 4804: cannot render %s", page.Template)
				http.Error(w, "Error 4804", http.StatusInternalServerError)
			}
		}).Methods(http.MethodGet)
	}
}

func (v *Views) render(w http.ResponseWriter, r *http.Request, view View, data map[string]interface{}) {
	merged := map[string]interface{}{}
	for k, value := range view.Data {
		merged[k] = value
	}
	for k, value := range data {
		merged[k] = value
	}
	if err := v.renderer.Render(w, http.StatusOK, view.Template, merged); err != nil {
		logger.FromContext(r.Context()).WithError(err).Errorf("Error 4800: cannot render %s", view.Template)
		http.Error(w, "Error 4800", http.StatusInternalServerError)
	}
}

func pagination(r *http.Request) (limit, offset int) {
	limit, offset = defaultLimit, 0
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}
	return limit, offset
}
