package meta

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xz3dev/quacklytics-sub000/code/types/api"
	typesdb "github.com/xz3dev/quacklytics-sub000/code/types/db"
)

type Backend interface {
	Range(ctx context.Context) (typesdb.TimeRange, bool, error)
	Schema(ctx context.Context) (map[string]map[string]string, error)
}

type RangeResponseData struct {
	Loaded bool               `json:"loaded"`
	Range  *typesdb.TimeRange `json:"range,omitempty"`
}

// RegisterRoutes registers the data range and schema lookups
func RegisterRoutes(r chi.Router, backend Backend, fail func(http.ResponseWriter, error)) {
	r.Get("/range", func(w http.ResponseWriter, r *http.Request) {
		HandleRange(w, r, backend, fail)
	})
	r.Get("/schema", func(w http.ResponseWriter, r *http.Request) {
		HandleSchema(w, r, backend, fail)
	})
}

func HandleRange(w http.ResponseWriter, r *http.Request, backend Backend, fail func(http.ResponseWriter, error)) {
	tr, ok, err := backend.Range(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	data := RangeResponseData{Loaded: ok}
	if ok {
		data.Range = &tr
	}
	api.Success(w, data)
}

func HandleSchema(w http.ResponseWriter, r *http.Request, backend Backend, fail func(http.ResponseWriter, error)) {
	schema, err := backend.Schema(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	api.Success(w, schema)
}
