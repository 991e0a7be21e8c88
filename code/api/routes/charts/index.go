package charts

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xz3dev/quacklytics-sub000/code/core/charts"
	"github.com/xz3dev/quacklytics-sub000/code/reconcile"
	"github.com/xz3dev/quacklytics-sub000/code/types/api"
)

type Backend interface {
	Chart(ctx context.Context, req charts.RenderRequest) (*charts.RenderResponse, error)
}

// RegisterRoutes registers chart rendering
func RegisterRoutes(r chi.Router, backend Backend, fail func(http.ResponseWriter, error)) {
	r.Post("/chart", func(w http.ResponseWriter, r *http.Request) {
		HandleChart(w, r, backend, fail)
	})
}

// HandleChart renders the posted series. Omitted range ends default to the loaded range.
func HandleChart(w http.ResponseWriter, r *http.Request, backend Backend, fail func(http.ResponseWriter, error)) {
	var req charts.RenderRequest
	if err := api.Decode(r, &req); err != nil {
		api.BadRequest(w, "Invalid JSON")
		return
	}
	if len(req.Series) == 0 {
		api.BadRequest(w, "series is required")
		return
	}
	if req.Bucket == "" {
		req.Bucket = reconcile.Day
	}
	resp, err := backend.Chart(r.Context(), req)
	if err != nil {
		fail(w, err)
		return
	}
	api.Success(w, resp)
}
