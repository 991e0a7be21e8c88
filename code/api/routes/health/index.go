package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xz3dev/quacklytics-sub000/code/engine"
	"github.com/xz3dev/quacklytics-sub000/code/types/api"
)

type Backend interface {
	EngineState() engine.State
}

type HealthResponseData struct {
	Engine string `json:"engine"`
}

// RegisterRoutes registers the liveness endpoint
func RegisterRoutes(r chi.Router, backend Backend) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		HandleHealth(w, r, backend)
	})
}

// HandleHealth reports the engine state; it answers 503 until the engine is ready
func HandleHealth(w http.ResponseWriter, r *http.Request, backend Backend) {
	state := backend.EngineState()
	data := HealthResponseData{Engine: state.String()}
	if state != engine.Ready {
		api.Envelope{Error: "engine " + state.String(), Data: data}.Send(w, http.StatusServiceUnavailable)
		return
	}
	api.Success(w, data)
}
