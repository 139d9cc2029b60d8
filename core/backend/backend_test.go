package backend_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/relabs-tech/restgen/core"
	"github.com/relabs-tech/restgen/core/backend"
	"github.com/relabs-tech/restgen/core/formatters"
	"github.com/relabs-tech/restgen/core/store"
)

var usersConfiguration = `{
	"domains": [
	  {
		"name": "users",
		"schemas": {
		  "create": {
			"type": "object",
			"properties": {
			  "email": {"type": "string", "format": "email", "required": true},
			  "password": {"type": "string", "required": true}
			}
		  },
		  "update": {
			"type": "object",
			"properties": {
			  "email": {"type": "string", "format": "email"},
			  "password": {"type": "string"}
			},
			"additionalProperties": false
		  },
		  "readMany": {
			"type": "object",
			"properties": {
			  "email": {"type": "string"}
			}
		  }
		}
	  }
	]
}`

func withUserFormatters(b *backend.Builder) {
	b.Formatters = map[string]backend.Formatters{
		"users": {
			core.OperationCreate:  {Input: formatters.HashPassword("password", bcrypt.MinCost), Output: formatters.Omit("password")},
			core.OperationReadOne: {Output: formatters.Omit("password")},
			core.OperationUpdate:  {Input: formatters.HashPassword("password", bcrypt.MinCost), Output: formatters.Omit("password")},
			core.OperationDestroy: {Output: formatters.Omit("password")},
		},
	}
}

func TestCreateUser(t *testing.T) {
	s := CreateTestService(t, usersConfiguration, withUserFormatters)
	users := s.Domain("users")

	var user map[string]interface{}
	status, err := users.Create(map[string]string{"email": "a@b.com", "password": "x"}, &user)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "a@b.com", user["email"])
	assert.NotContains(t, user, "password")
	assert.Equal(t, 1, s.Memory.Len("users"))

	stored := s.Memory.Raw("users", user["id"])
	require.NotNil(t, stored)
	assert.NotEqual(t, "x", stored["password"])
	assert.NoError(t, formatters.CheckPassword(stored["password"].(string), "x"))
}

func TestCreateValidation(t *testing.T) {
	s := CreateTestService(t, usersConfiguration)
	users := s.Domain("users")

	status, err := users.Create(map[string]string{"email": "a@b.com"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.EqualError(t, err, "POST /api/users returned 400: Key password is required")

	status, err = users.Create(map[string]string{"email": "not an email", "password": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.EqualError(t, err, "POST /api/users returned 400: Key email is required")

	status, err = users.Create([]byte(`{"email": `), nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Error(t, err)

	assert.Equal(t, 0, s.Memory.Len("users"))
}

func TestUpdateRejectsAdditionalProperties(t *testing.T) {
	s := CreateTestService(t, usersConfiguration)
	users := s.Domain("users")

	var user map[string]interface{}
	_, err := users.Create(map[string]string{"email": "a@b.com", "password": "x"}, &user)
	require.NoError(t, err)

	status, err := users.Update(user["id"], map[string]string{"nickname": "bob"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nickname")
	assert.NotContains(t, err.Error(), "is required")
}

func TestUpdateAndDestroy(t *testing.T) {
	s := CreateTestService(t, usersConfiguration, withUserFormatters)
	users := s.Domain("users")

	var user map[string]interface{}
	_, err := users.Create(map[string]string{"email": "a@b.com", "password": "x"}, &user)
	require.NoError(t, err)
	id := user["id"]

	var updated map[string]interface{}
	status, err := users.Update(id, map[string]string{"email": "c@d.com"}, &updated)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "c@d.com", updated["email"])
	assert.NotContains(t, updated, "password")

	var deleted map[string]interface{}
	status, err = users.Delete(id, &deleted)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "c@d.com", deleted["email"])
	assert.Equal(t, 0, s.Memory.Len("users"))

	status, _ = users.Read(id, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = users.Delete(id, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUpdateMissingUser(t *testing.T) {
	s := CreateTestService(t, usersConfiguration)

	status, err := s.Domain("users").Update(4711, map[string]string{"email": "c@d.com"}, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.EqualError(t, err, "PATCH /api/users/4711 returned 404: no such users with id '4711'")
	assert.Equal(t, 0, s.Memory.Len("users"))
}

func TestReadOneIsIdempotent(t *testing.T) {
	s := CreateTestService(t, usersConfiguration, withUserFormatters)
	users := s.Domain("users")

	var user map[string]interface{}
	_, err := users.Create(map[string]string{"email": "a@b.com", "password": "x"}, &user)
	require.NoError(t, err)

	var first, second map[string]interface{}
	_, err = users.Read(user["id"], &first)
	require.NoError(t, err)
	_, err = users.Read(user["id"], &second)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NotContains(t, first, "password")

	res, err := s.Client.Do(http.MethodGet, users.ItemPath(user["id"]), nil, nil)
	require.NoError(t, err)
	etag := res.Header.Get("Etag")
	require.NotEmpty(t, etag)
	res, err = s.Client.Do(http.MethodGet, users.ItemPath(user["id"]), map[string]string{"If-None-Match": etag}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, res.Status)
}

func TestReadOneKeys(t *testing.T) {
	s := CreateTestService(t, usersConfiguration)
	users := s.Domain("users")

	var user map[string]interface{}
	_, err := users.Create(map[string]string{"email": "a@b.com", "password": "x"}, &user)
	require.NoError(t, err)

	var item map[string]interface{}
	_, err = users.WithParameter("keys", "email").Read(user["id"], &item)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"email": "a@b.com"}, item)

	// limit and offset are meaningless for a single row
	_, err = users.WithPage(1, 5).Read(user["id"], &item)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", item["email"])
}

func TestConfiguredKeys(t *testing.T) {
	s := CreateTestService(t, `{"domains":[{"name":"users","schemas":{"keys":["id","email"]}}]}`)

	var user map[string]interface{}
	_, err := s.Domain("users").Create(map[string]string{"email": "a@b.com", "password": "x"}, &user)
	require.NoError(t, err)
	assert.Len(t, user, 2)
	assert.Equal(t, "a@b.com", user["email"])
	assert.Equal(t, 1, s.Memory.Len("users"))
	assert.Equal(t, "x", s.Memory.Raw("users", user["id"])["password"])
}

func TestReadManyPagination(t *testing.T) {
	s := CreateTestService(t, usersConfiguration)
	users := s.Domain("users")
	for i := 0; i < 45; i++ {
		_, err := users.Create(map[string]string{"email": fmt.Sprintf("user%d@b.com", i), "password": "x"}, nil)
		require.NoError(t, err)
	}

	var page1, page2 []map[string]interface{}
	_, envelope, err := users.WithPage(10, 20).List(&page1)
	require.NoError(t, err)
	_, _, err = users.WithPage(10, 30).List(&page2)
	require.NoError(t, err)
	require.Len(t, page1, 10)
	require.Len(t, page2, 10)

	ids := map[interface{}]bool{}
	for _, u := range page1 {
		ids[u["id"]] = true
	}
	for _, u := range page2 {
		assert.False(t, ids[u["id"]], "pages must be disjoint")
	}

	require.NotNil(t, envelope.Meta)
	assert.Equal(t, 10, envelope.Meta.Limit)
	assert.Equal(t, 20, envelope.Meta.Offset)
	assert.Equal(t, 10, envelope.Meta.Count)
	assert.Equal(t, "/api/users?limit=10&offset=30", envelope.Links.Next)
	assert.Equal(t, "/api/users?limit=10&offset=10", envelope.Links.Prev)

	var all []map[string]interface{}
	_, envelope, err = users.List(&all)
	require.NoError(t, err)
	assert.Len(t, all, 45)
	assert.Empty(t, envelope.Links.Next)
	assert.Empty(t, envelope.Links.Prev)
}

func TestReadManyParameters(t *testing.T) {
	s := CreateTestService(t, usersConfiguration)
	users := s.Domain("users")
	for _, email := range []string{"a@b.com", "c@d.com"} {
		_, err := users.Create(map[string]string{"email": email, "password": "x"}, nil)
		require.NoError(t, err)
	}

	var found []map[string]interface{}
	_, _, err := users.WithParameter("email", "c@d.com").WithParameter("keys", "id,email").List(&found)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "c@d.com", found[0]["email"])
	assert.NotContains(t, found[0], "password")

	for _, limit := range []string{"0", "1001", "ten"} {
		status, _, err := users.WithParameter("limit", limit).List(nil)
		assert.Equal(t, http.StatusBadRequest, status, limit)
		assert.Error(t, err)
	}
	status, _, _ := users.WithParameter("offset", "-1").List(nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestNotifications(t *testing.T) {
	notifier := &recordingNotifier{}
	s := CreateTestService(t, usersConfiguration, withUserFormatters, func(b *backend.Builder) {
		b.Notifier = notifier
	})
	users := s.Domain("users")

	var user map[string]interface{}
	_, err := users.Create(map[string]string{"email": "a@b.com", "password": "x"}, &user)
	require.NoError(t, err)
	_, err = users.Read(user["id"], nil)
	require.NoError(t, err)
	_, err = users.Update(user["id"], map[string]string{"email": "c@d.com"}, nil)
	require.NoError(t, err)
	_, err = users.Delete(user["id"], nil)
	require.NoError(t, err)

	n := notifier.all()
	require.Len(t, n, 3)
	assert.Equal(t, core.OperationCreate, n[0].Operation)
	assert.Equal(t, core.OperationUpdate, n[1].Operation)
	assert.Equal(t, core.OperationDestroy, n[2].Operation)
	assert.Equal(t, "users", n[0].Domain)
	assert.JSONEq(t, `{"id":1,"email":"a@b.com"}`, n[0].Payload)
}

func TestFormatterErrors(t *testing.T) {
	s := CreateTestService(t, usersConfiguration, func(b *backend.Builder) {
		b.Formatters = map[string]backend.Formatters{
			"users": {
				core.OperationCreate: {Input: func(ctx context.Context, r *backend.Request) (store.Row, error) {
					if r.Body["email"] == "taken@b.com" {
						return nil, backend.WithStatus(errors.New("email is taken"), http.StatusConflict)
					}
					panic("formatter bug")
				}},
			},
		}
	})
	users := s.Domain("users")

	status, err := users.Create(map[string]string{"email": "taken@b.com", "password": "x"}, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.EqualError(t, err, "POST /api/users returned 409: email is taken")

	status, err = users.Create(map[string]string{"email": "a@b.com", "password": "x"}, nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.EqualError(t, err, "POST /api/users returned 500: Internal Server Error")
	assert.Equal(t, 0, s.Memory.Len("users"))
}

func TestCustomFinalizerAndPostware(t *testing.T) {
	s := CreateTestService(t, usersConfiguration, func(b *backend.Builder) {
		b.Postware = append(b.Postware, func(h http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				h.ServeHTTP(w, r)
				if rec := backend.RecordFromContext(r.Context()); rec != nil && rec.Error == nil {
					rec.Meta = map[string]string{"source": "postware"}
				}
			})
		})
		b.OnError = func(w http.ResponseWriter, r *http.Request, rec *backend.Record) {
			w.WriteHeader(http.StatusTeapot)
		}
	})
	users := s.Domain("users")

	_, err := users.Create(map[string]string{"email": "a@b.com", "password": "x"}, nil)
	require.NoError(t, err)

	res, err := s.Client.Do(http.MethodGet, "/api/users", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, string(res.Body), `"meta":{"source":"postware"}`)

	res, err = s.Client.Do(http.MethodGet, "/api/users/99", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, res.Status)
}

func TestDomainsAreIndependent(t *testing.T) {
	s := CreateTestService(t, `{"domains":[{"name":"users"},{"name":"posts"}]}`)
	assert.Len(t, s.Backend.Routers, 2)
	assert.Equal(t, "users", s.Backend.Domains()[0].Name)
	assert.Equal(t, "posts", s.Backend.Domains()[1].Name)

	_, err := s.Domain("posts").Create(map[string]string{"title": "hello"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Memory.Len("posts"))
	assert.Equal(t, 0, s.Memory.Len("users"))

	res, err := s.Client.Do(http.MethodGet, "/api/comments", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestInvalidConfigurationPanics(t *testing.T) {
	for _, config := range []string{
		`{"domains":[{"name":"users"},{"name":"users"}]}`,
		`{"domains":[{"name":"bad/name"}]}`,
		`{"domains":[{"name":"users","schemas":{"readOne":{"acceptFiles":true}}}]}`,
		`{"domains":[{"name":"users","schemas":{"keys":5}}]}`,
		`{"domains":`,
	} {
		assert.Panics(t, func() { CreateTestService(t, config) }, config)
	}
	assert.Panics(t, func() {
		CreateTestService(t, usersConfiguration, func(b *backend.Builder) {
			b.Formatters = map[string]backend.Formatters{"nobody": {}}
		})
	})
}

var guardedConfiguration = `{
	"domains": [
	  {
		"name": "users",
		"schemas": {
		  "readOne": {
			"type": "object",
			"properties": {"verbose": {"type": "string"}},
			"additionalProperties": false
		  },
		  "destroy": {
			"type": "object",
			"properties": {"force": {"type": "string"}},
			"additionalProperties": false
		  }
		}
	  }
	]
}`

func TestReadOneValidatesParameters(t *testing.T) {
	s := CreateTestService(t, guardedConfiguration)
	users := s.Domain("users")

	var user map[string]interface{}
	_, err := users.Create(map[string]string{"email": "a@b.com"}, &user)
	require.NoError(t, err)

	status, err := users.WithParameter("unknown", "x").Read(user["id"], nil)
	assert.Equal(t, http.StatusBadRequest, status)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Additional property unknown is not allowed")

	status, err = users.WithParameter("verbose", "yes").WithParameter("keys", "email").Read(user["id"], nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
}

func TestDestroyValidatesParameters(t *testing.T) {
	s := CreateTestService(t, guardedConfiguration)
	users := s.Domain("users")

	var user map[string]interface{}
	_, err := users.Create(map[string]string{"email": "a@b.com"}, &user)
	require.NoError(t, err)

	status, err := users.WithParameter("unknown", "x").Delete(user["id"], nil)
	assert.Equal(t, http.StatusBadRequest, status)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Additional property unknown is not allowed")
	assert.Equal(t, 1, s.Memory.Len("users"))

	status, err = users.WithParameter("force", "yes").Delete(user["id"], nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, s.Memory.Len("users"))
}
