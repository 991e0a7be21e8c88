package query

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xz3dev/quacklytics-sub000/code/core/queries"
	"github.com/xz3dev/quacklytics-sub000/code/types/api"
)

type Backend interface {
	Query(ctx context.Context, req queries.RunRequest) (*queries.RunResponse, error)
}

// RegisterRoutes registers the ad hoc query endpoint
func RegisterRoutes(r chi.Router, backend Backend, fail func(http.ResponseWriter, error)) {
	r.Post("/query", func(w http.ResponseWriter, r *http.Request) {
		HandleQuery(w, r, backend, fail)
	})
}

func HandleQuery(w http.ResponseWriter, r *http.Request, backend Backend, fail func(http.ResponseWriter, error)) {
	var req queries.RunRequest
	if err := api.Decode(r, &req); err != nil {
		api.BadRequest(w, "Invalid JSON")
		return
	}
	resp, err := backend.Query(r.Context(), req)
	if err != nil {
		fail(w, err)
		return
	}
	api.Success(w, resp)
}
