// Package api exposes the live map over HTTP.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"poimap/internal/httpx"
	"poimap/internal/lifecycle"
	"poimap/internal/mapview"
	"poimap/internal/models"
	"poimap/internal/permission"
	"poimap/pkg/location"
)

// MapScreen is the activity as seen from the API.
type MapScreen interface {
	Snapshot(ctx context.Context) (mapview.Snapshot, error)
	PinIcon(ctx context.Context, i int) ([]byte, error)
	State(ctx context.Context) (lifecycle.State, error)
	Background(ctx context.Context) error
	Foreground(ctx context.Context) error
	LowMemory(ctx context.Context) error
}

// FixSink accepts location fixes.
type FixSink interface {
	Push(ctx context.Context, fix models.Fix) error
}

// Geocoder names the place at a coordinate.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (*location.Address, error)
}

// Handler serves the map HTTP API.
type Handler struct {
	screen      MapScreen
	fixes       FixSink
	permissions *permission.Store
	geocoder    Geocoder
}

// Option configures a Handler.
type Option func(*Handler)

// WithGeocoder enables GET /api/map/address.
func WithGeocoder(g Geocoder) Option {
	return func(h *Handler) { h.geocoder = g }
}

// NewHandler wires the screen, location sink and permissions into a Handler.
func NewHandler(screen MapScreen, fixes FixSink, permissions *permission.Store, opts ...Option) *Handler {
	h := &Handler{screen: screen, fixes: fixes, permissions: permissions}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router builds the full router with the standard middleware stack.
func (h *Handler) Router(timeout time.Duration) chi.Router {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(timeout),
	)
	router.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Mount("/api", h.Routes())
	return router
}

// Routes returns the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/map", h.getMap)
	r.Get("/map/address", h.getAddress)
	r.Get("/pins/{index}/icon", h.getPinIcon)
	r.Get("/lifecycle", h.getLifecycle)
	r.Post("/lifecycle", h.postLifecycle)
	r.Post("/location", h.postLocation)
	r.Post("/permissions", h.postPermissions)
	return r
}

func (h *Handler) getMap(w http.ResponseWriter, r *http.Request) {
	snap, err := h.screen.Snapshot(r.Context())
	if err != nil {
		log.Printf("Failed to snapshot map: %v", err)
		httpx.Error(w, http.StatusServiceUnavailable, "map unavailable")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, snap)
}

// getAddress reverse-geocodes the current scene centre.
func (h *Handler) getAddress(w http.ResponseWriter, r *http.Request) {
	if h.geocoder == nil {
		httpx.Error(w, http.StatusNotImplemented, "reverse geocoding disabled")
		return
	}
	snap, err := h.screen.Snapshot(r.Context())
	if err != nil {
		httpx.Error(w, http.StatusServiceUnavailable, "map unavailable")
		return
	}
	if len(snap.Pins) == 0 {
		httpx.Error(w, http.StatusNotFound, "no location yet")
		return
	}
	addr, err := h.geocoder.Reverse(r.Context(), snap.Scene.Center.Lat, snap.Scene.Center.Lng)
	if err != nil {
		log.Printf("Reverse geocoding %s failed: %v", snap.Scene.Center, err)
		httpx.Error(w, http.StatusBadGateway, "reverse geocoding failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, addr)
}

func (h *Handler) getPinIcon(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid pin index")
		return
	}
	data, err := h.screen.PinIcon(r.Context(), index)
	if err != nil {
		httpx.Error(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type lifecycleResponse struct {
	State string `json:"state"`
}

func (h *Handler) getLifecycle(w http.ResponseWriter, r *http.Request) {
	state, err := h.screen.State(r.Context())
	if err != nil {
		httpx.Error(w, http.StatusServiceUnavailable, "map unavailable")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, lifecycleResponse{State: state.String()})
}

type lifecycleRequest struct {
	Action string `json:"action"`
}

func (h *Handler) postLifecycle(w http.ResponseWriter, r *http.Request) {
	var req lifecycleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	var err error
	switch req.Action {
	case "background":
		err = h.screen.Background(r.Context())
	case "foreground":
		err = h.screen.Foreground(r.Context())
	case "low_memory":
		err = h.screen.LowMemory(r.Context())
	default:
		httpx.Error(w, http.StatusBadRequest, "action must be background, foreground or low_memory")
		return
	}
	if errors.Is(err, lifecycle.ErrInvalidTransition) {
		httpx.Error(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		httpx.Error(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	h.getLifecycle(w, r)
}

type locationRequest struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Accuracy  float64    `json:"accuracy"`
	DeviceID  string     `json:"device_id"`
	Timestamp *time.Time `json:"timestamp"`
}

func (h *Handler) postLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	fix := models.Fix{
		DeviceID:  req.DeviceID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Accuracy:  req.Accuracy,
	}
	if req.Timestamp != nil {
		fix.Timestamp = req.Timestamp.UTC()
	}
	if err := fix.Validate(); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.fixes.Push(r.Context(), fix); err != nil {
		log.Printf("Failed to accept fix: %v", err)
		httpx.Error(w, http.StatusServiceUnavailable, "location service unavailable")
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type permissionsRequest struct {
	Grant  []string `json:"grant"`
	Revoke []string `json:"revoke"`
}

type permissionsResponse struct {
	Resolved int                              `json:"resolved"`
	Status   map[permission.Permission]string `json:"status"`
}

func (h *Handler) postPermissions(w http.ResponseWriter, r *http.Request) {
	var req permissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	grant, err := parsePermissions(req.Grant)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	revoke, err := parsePermissions(req.Revoke)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	h.permissions.Grant(grant...)
	h.permissions.Revoke(revoke...)
	resp := permissionsResponse{
		Resolved: h.permissions.Resolve(),
		Status:   make(map[permission.Permission]string),
	}
	for _, p := range []permission.Permission{permission.AccessFineLocation, permission.AccessCoarseLocation} {
		resp.Status[p] = h.permissions.Check(p).String()
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func parsePermissions(names []string) ([]permission.Permission, error) {
	out := make([]permission.Permission, 0, len(names))
	for _, name := range names {
		p, err := permission.Parse(name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
