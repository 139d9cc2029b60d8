package views_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/restgen/core"
	"github.com/relabs-tech/restgen/core/store"
	"github.com/relabs-tech/restgen/core/views"
)

var templates = map[string]string{
	"default_create.html":    `create {{.title}}`,
	"default_read_many.html": `{{range .list}}[{{.email}}]{{end}}`,
	"default_read_one.html":  `{{with .item}}one {{.email}}{{else}}missing{{end}}`,
	"default_update.html":    `edit {{.item.email}}`,
	"default_destroy.html":   `delete {{.item.id}}`,
	"users_list.html":        `users: {{len .list}}`,
	"home.html":              `home {{.count}}`,
}

func setup(t *testing.T, config views.Config) (*mux.Router, *store.Memory) {
	dir := t.TempDir()
	for name, content := range templates {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
	}
	renderer, err := views.NewRenderer(dir)
	require.NoError(t, err)

	memory := store.NewMemory()
	for _, email := range []string{"a@b.com", "<c@d.com>"} {
		_, err := memory.InsertRow(context.Background(), "users", store.Row{"email": email}, store.AllFields)
		require.NoError(t, err)
	}

	router := mux.NewRouter()
	v := views.New(renderer, memory)
	v.Domain(router, "users", config)
	v.Pages(router, []views.Page{{
		Path:     "/",
		Template: "home",
		Data: func(ctx context.Context, adapter store.Adapter) (map[string]interface{}, error) {
			rows, err := adapter.SelectRows(ctx, "users", store.AllFields, nil, 100, 0)
			return map[string]interface{}{"count": len(rows)}, err
		},
	}})
	return router, memory
}

func get(router *mux.Router, path string) (int, string) {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code, rec.Body.String()
}

func TestDefaultViews(t *testing.T) {
	router, _ := setup(t, views.Config{Create: &views.View{Data: map[string]interface{}{"title": "New user"}}})

	for path, expected := range map[string]string{
		"/users/create":   "create New user",
		"/users":          "[a@b.com][&lt;c@d.com&gt;]",
		"/users?limit=1":  "[a@b.com]",
		"/users/1":        "one a@b.com",
		"/users/99":       "missing",
		"/users/1/edit":   "edit a@b.com",
		"/users/2/delete": "delete 2",
		"/":               "home 2",
	} {
		status, body := get(router, path)
		assert.Equal(t, http.StatusOK, status, path)
		assert.Equal(t, expected, body, path)
	}
}

func TestConfiguredView(t *testing.T) {
	router, _ := setup(t, views.Config{ReadMany: &views.View{Template: "users_list"}})
	_, body := get(router, "/users")
	assert.Equal(t, "users: 2", body)

	router, _ = setup(t, views.Config{ReadOne: &views.View{Template: "nonexistent"}})
	status, _ := get(router, "/users/1")
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestConfigView(t *testing.T) {
	c := views.Config{Update: &views.View{Data: map[string]interface{}{"a": 1}}}
	assert.Equal(t, views.View{Template: views.DefaultUpdate, Data: map[string]interface{}{"a": 1}}, c.View(core.OperationUpdate))
	assert.Equal(t, views.View{Template: views.DefaultDestroy}, c.View(core.OperationDestroy))
}

func TestNewRendererWithoutTemplates(t *testing.T) {
	_, err := views.NewRenderer(t.TempDir())
	assert.Error(t, err)
}
