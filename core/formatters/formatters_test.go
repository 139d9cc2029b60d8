package formatters

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/relabs-tech/restgen/core/backend"
	"github.com/relabs-tech/restgen/core/store"
)

func TestHashPassword(t *testing.T) {
	body := store.Row{"email": "a@b.com", "password": "x"}
	row, err := HashPassword("password", bcrypt.MinCost)(context.Background(), &backend.Request{Body: body})
	require.NoError(t, err)

	assert.Equal(t, "a@b.com", row["email"])
	assert.NotEqual(t, "x", row["password"])
	assert.NoError(t, CheckPassword(row["password"].(string), "x"))
	assert.Error(t, CheckPassword(row["password"].(string), "y"))
	assert.Equal(t, "x", body["password"], "the request body must not be modified")
}

func TestHashPasswordWithoutField(t *testing.T) {
	row, err := HashPassword("password", bcrypt.MinCost)(context.Background(), &backend.Request{Body: store.Row{"email": "a@b.com"}})
	require.NoError(t, err)
	assert.Equal(t, store.Row{"email": "a@b.com"}, row)

	_, err = HashPassword("password", bcrypt.MinCost)(context.Background(), &backend.Request{Body: store.Row{"password": 5}})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, backend.StatusOf(err))
}

func TestOmitAndChain(t *testing.T) {
	row, err := Omit("password", "salt")(context.Background(), store.Row{"id": 1, "password": "h"})
	require.NoError(t, err)
	assert.Equal(t, store.Row{"id": 1}, row)

	addRole := func(ctx context.Context, r *backend.Request) (store.Row, error) {
		out := copyRow(r.Body)
		out["role"] = "member"
		return out, nil
	}
	row, err = Chain(addRole, HashPassword("password", bcrypt.MinCost))(context.Background(),
		&backend.Request{Body: store.Row{"password": "x"}})
	require.NoError(t, err)
	assert.Equal(t, "member", row["role"])
	assert.NotEqual(t, "x", row["password"])
}
