// Package admin serves a read-only HTTP view of the running maps: a JSON
// status API and a websocket feed of periodic snapshots.
package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/l1jgo/worldserver/internal/config"
	"github.com/l1jgo/worldserver/internal/maps"
)

// Source is what the admin API reads. *maps.Manager implements it.
type Source interface {
	Stats() []maps.Stats
	MapStats(mapID, instanceID uint32) (maps.Stats, bool)
	LiveInstanceIDs() []uint32
	Notices() []maps.Notice
}

// NewRouter builds the admin router with middlewares and routes.
func NewRouter(cfg config.AdminConfig, src Source, log *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	h := &mapHandler{src: src}
	f := newFeed(src, cfg.FeedInterval, cfg.AllowedOrigins, log)
	r.Route("/v1", func(sub chi.Router) {
		h.Routes(sub)
		sub.Get("/ws/maps", f.ServeHTTP)
	})
	return r
}

type mapHandler struct {
	src Source
}

func (h *mapHandler) Routes(r chi.Router) {
	r.Get("/maps", h.List)
	r.Get("/maps/{mapID}/{instanceID}", h.Get)
	r.Get("/instances/ids", h.InstanceIDs)
	r.Get("/notices", h.Notices)
}

// List GET /maps
func (h *mapHandler) List(w http.ResponseWriter, _ *http.Request) {
	items := h.src.Stats()
	writeJSON(w, http.StatusOK, apiListResponse[maps.Stats]{Items: items, TotalItems: len(items)})
}

// Get GET /maps/{mapID}/{instanceID}
func (h *mapHandler) Get(w http.ResponseWriter, r *http.Request) {
	mapID, err := parseID(chi.URLParam(r, "mapID"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid map id")
		return
	}
	instanceID, err := parseID(chi.URLParam(r, "instanceID"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid instance id")
		return
	}
	st, ok := h.src.MapStats(mapID, instanceID)
	if !ok {
		errorJSON(w, http.StatusNotFound, "map not loaded")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// InstanceIDs GET /instances/ids
func (h *mapHandler) InstanceIDs(w http.ResponseWriter, _ *http.Request) {
	ids := h.src.LiveInstanceIDs()
	if ids == nil {
		ids = []uint32{}
	}
	writeJSON(w, http.StatusOK, apiListResponse[uint32]{Items: ids, TotalItems: len(ids)})
}

// Notices GET /notices
func (h *mapHandler) Notices(w http.ResponseWriter, _ *http.Request) {
	items := h.src.Notices()
	if items == nil {
		items = []maps.Notice{}
	}
	writeJSON(w, http.StatusOK, apiListResponse[maps.Notice]{Items: items, TotalItems: len(items)})
}

func parseID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

// NewServer wraps the router in an http.Server. The websocket feed sets its
// own write deadline before every push.
func NewServer(cfg config.AdminConfig, src Source, log *zap.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.BindAddress,
		Handler:           NewRouter(cfg, src, log),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
