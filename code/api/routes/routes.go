package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xz3dev/quacklytics-sub000/code/api/routes/charts"
	"github.com/xz3dev/quacklytics-sub000/code/api/routes/health"
	"github.com/xz3dev/quacklytics-sub000/code/api/routes/meta"
	"github.com/xz3dev/quacklytics-sub000/code/api/routes/query"
	"github.com/xz3dev/quacklytics-sub000/code/api/routes/sync"
	"github.com/xz3dev/quacklytics-sub000/code/sdk"
)

// RegisterAllRoutes mounts every endpoint of the local API
func RegisterAllRoutes(r chi.Router, session *sdk.Session) {
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	health.RegisterRoutes(r, session)
	sync.RegisterRoutes(r, session, Fail)
	query.RegisterRoutes(r, session, Fail)
	charts.RegisterRoutes(r, session, Fail)
	meta.RegisterRoutes(r, session, Fail)
	r.Method(http.MethodGet, "/metrics", session.Metrics().Handler())
}
