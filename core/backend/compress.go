package backend

import (
	"net/http"

	"github.com/gorilla/handlers"
)

// Compression gzips responses for clients which accept it
func Compression(h http.Handler) http.Handler {
	return handlers.CompressHandler(h)
}
