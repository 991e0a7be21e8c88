package routes

import (
	"errors"
	"net/http"

	"github.com/xz3dev/quacklytics-sub000/code/catalog"
	"github.com/xz3dev/quacklytics-sub000/code/engine"
	"github.com/xz3dev/quacklytics-sub000/code/sdk"
	"github.com/xz3dev/quacklytics-sub000/code/types/api"
)

// Fail maps an operation error onto the response envelope
func Fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotReady):
		api.ServiceUnavailable(w, err.Error())
	case errors.Is(err, sdk.ErrNoData), errors.Is(err, catalog.ErrNotFound):
		api.NotFound(w, err.Error())
	case errors.Is(err, catalog.ErrUnauthorized):
		api.Error(w, http.StatusBadGateway, err.Error())
	default:
		api.InternalError(w, err.Error())
	}
}
