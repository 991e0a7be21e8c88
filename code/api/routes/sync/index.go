package sync

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xz3dev/quacklytics-sub000/code/syncer"
	"github.com/xz3dev/quacklytics-sub000/code/types/api"
)

type Backend interface {
	Sync(ctx context.Context) (*syncer.Result, error)
}

// RegisterRoutes registers the sync trigger
func RegisterRoutes(r chi.Router, backend Backend, fail func(http.ResponseWriter, error)) {
	r.Post("/sync", func(w http.ResponseWriter, r *http.Request) {
		HandleSync(w, r, backend, fail)
	})
}

// HandleSync runs one sync cycle and returns its summary. Per-file failures are part of a
// successful response.
func HandleSync(w http.ResponseWriter, r *http.Request, backend Backend, fail func(http.ResponseWriter, error)) {
	res, err := backend.Sync(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	api.Success(w, res)
}
