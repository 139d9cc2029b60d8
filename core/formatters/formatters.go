// Package formatters provides ready made input and output formatters
package formatters

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/relabs-tech/restgen/core/backend"
	"github.com/relabs-tech/restgen/core/store"
)

// HashPassword returns an input formatter which replaces the plain text in field with
// its bcrypt hash. Bodies without the field pass unchanged.
func HashPassword(field string, cost int) backend.InputFormatter {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return func(ctx context.Context, r *backend.Request) (store.Row, error) {
		input := copyRow(r.Body)
		value, ok := input[field]
		if !ok {
			return input, nil
		}
		plain, ok := value.(string)
		if !ok {
			return nil, backend.WithStatus(fmt.Errorf("%s must be a string", field), http.StatusBadRequest)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
		if err != nil {
			return nil, err
		}
		input[field] = string(hash)
		return input, nil
	}
}

// CheckPassword returns nil if plain matches the stored hash
func CheckPassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}

// Omit returns an output formatter which removes fields from the returned row
func Omit(fields ...string) backend.OutputFormatter {
	return func(ctx context.Context, row store.Row) (store.Row, error) {
		output := copyRow(row)
		for _, f := range fields {
			delete(output, f)
		}
		return output, nil
	}
}

// Chain returns an input formatter which applies formatters in order, each one
// seeing the result of its predecessor as body
func Chain(formatters ...backend.InputFormatter) backend.InputFormatter {
	return func(ctx context.Context, r *backend.Request) (store.Row, error) {
		current := *r
		for _, f := range formatters {
			row, err := f(ctx, &current)
			if err != nil {
				return nil, err
			}
			current.Body = row
		}
		return current.Body, nil
	}
}

func copyRow(row store.Row) store.Row {
	result := make(store.Row, len(row))
	for k, v := range row {
		result[k] = v
	}
	return result
}
