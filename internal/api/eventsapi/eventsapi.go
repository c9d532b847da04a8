// Package eventsapi exposes the booking platform over HTTP: REST endpoints
// for the pull model and the websocket push channel at /events.
package eventsapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/dispatch"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/hub"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/models"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/services/feeder"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/services/lifecycle"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/services/unread"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/storage/pgbooking"
)

// ConnLimiter ограничивает частоту handshake'ов на /events.
type ConnLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// VehicleStore is the slice of storage the vehicle endpoints need.
type VehicleStore interface {
	CreateVehicle(ctx context.Context, label string) (*models.Vehicle, error)
	ListVehicles(ctx context.Context) ([]*models.Vehicle, error)
}

type Options struct {
	SwaggerPath     string
	HandshakeLimit  int64
	HandshakeWindow time.Duration
}

type API struct {
	hub        *hub.Hub
	dispatcher *dispatch.Dispatcher
	bookings   *lifecycle.Service
	inbox      *unread.Service
	vehicles   VehicleStore
	feeder     *feeder.Feeder // optional, stats only
	limiter    ConnLimiter    // optional
	opts       Options
}

func New(h *hub.Hub, d *dispatch.Dispatcher, bookings *lifecycle.Service, inbox *unread.Service, vehicles VehicleStore, opts Options) *API {
	if opts.HandshakeLimit <= 0 {
		opts.HandshakeLimit = 10
	}
	if opts.HandshakeWindow <= 0 {
		opts.HandshakeWindow = time.Minute
	}
	return &API{
		hub:        h,
		dispatcher: d,
		bookings:   bookings,
		inbox:      inbox,
		vehicles:   vehicles,
		opts:       opts,
	}
}

func (a *API) WithLimiter(l ConnLimiter) *API {
	a.limiter = l
	return a
}

func (a *API) WithFeeder(f *feeder.Feeder) *API {
	a.feeder = f
	return a
}

func (a *API) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/events", a.handleEvents)

	r.Post("/bookings", a.createBooking)
	r.Get("/bookings/{id}", a.getBooking)
	r.Post("/bookings/{id}/status", a.updateBookingStatus)
	r.Get("/bookings/{id}/events", a.listBookingEvents)

	r.Post("/notifications", a.postNotification)
	r.Post("/messages", a.postMessage)
	r.Get("/inbox/{channel}", a.listInbox)
	r.Post("/inbox/{channel}/{id}/read", a.markRead)
	r.Post("/inbox/{channel}/read-all", a.markAllRead)
	r.Get("/inbox/{channel}/unread-count", a.unreadCount)

	r.Post("/vehicles", a.createVehicle)
	r.Get("/vehicles", a.listVehicles)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/stats", a.stats)

	if a.opts.SwaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, req *http.Request) {
			http.ServeFile(w, req, a.opts.SwaggerPath)
		})
		r.Get("/docs/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger.json"),
		))
	}

	return r
}

func (a *API) createBooking(w http.ResponseWriter, r *http.Request) {
	var in models.BookingCreateInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if in.UserID == 0 || in.TrackNumber == "" {
		writeError(w, http.StatusBadRequest, errors.New("userId and trackNumber are required"))
		return
	}
	b, err := a.bookings.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (a *API) getBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	b, err := a.bookings.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type statusUpdateRequest struct {
	Status   models.BookingStatus `json:"status"`
	Location string               `json:"location"`
	Note     string               `json:"note"`
}

func (a *API) updateBookingStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req statusUpdateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ev, err := a.bookings.Transition(r.Context(), id, req.Status, req.Location, req.Note)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) listBookingEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, offset := pagination(r)
	evs, err := a.bookings.History(r.Context(), id, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

func (a *API) postNotification(w http.ResponseWriter, r *http.Request) {
	var n models.Notification
	if err := readJSON(r, &n); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.inbox.Notify(r.Context(), &n); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (a *API) postMessage(w http.ResponseWriter, r *http.Request) {
	var m models.Message
	if err := readJSON(r, &m); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.inbox.Send(r.Context(), &m); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) listInbox(w http.ResponseWriter, r *http.Request) {
	ch, userID, err := inboxParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, offset := pagination(r)
	switch ch {
	case models.ChannelNotification:
		ns, err := a.inbox.ListNotifications(r.Context(), userID, limit, offset)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ns)
	default:
		ms, err := a.inbox.ListMessages(r.Context(), userID, limit, offset)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ms)
	}
}

func (a *API) markRead(w http.ResponseWriter, r *http.Request) {
	ch, userID, err := inboxParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	itemID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.inbox.MarkRead(r.Context(), ch, itemID, userID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) markAllRead(w http.ResponseWriter, r *http.Request) {
	ch, userID, err := inboxParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.inbox.MarkAllRead(r.Context(), ch, userID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) unreadCount(w http.ResponseWriter, r *http.Request) {
	ch, userID, err := inboxParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	n, err := a.inbox.Count(r.Context(), ch, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

type vehicleCreateRequest struct {
	Label string `json:"label"`
}

func (a *API) createVehicle(w http.ResponseWriter, r *http.Request) {
	var req vehicleCreateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Label == "" {
		writeError(w, http.StatusBadRequest, errors.New("label is required"))
		return
	}
	v, err := a.vehicles.CreateVehicle(r.Context(), req.Label)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (a *API) listVehicles(w http.ResponseWriter, r *http.Request) {
	vs, err := a.vehicles.ListVehicles(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (a *API) stats(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"hub":        a.hub.Stats(),
		"dispatcher": a.dispatcher.Stats(),
	}
	if a.feeder != nil {
		resp["feeder"] = a.feeder.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func inboxParams(r *http.Request) (models.Channel, uint64, error) {
	ch := models.Channel(chi.URLParam(r, "channel"))
	if !ch.Valid() {
		return "", 0, errors.Errorf("unknown channel %q", ch)
	}
	userID, err := strconv.ParseUint(r.URL.Query().Get("userId"), 10, 64)
	if err != nil || userID == 0 {
		return "", 0, errors.New("userId query param is required")
	}
	return ch, userID, nil
}

func pathID(r *http.Request, name string) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Errorf("invalid %s", name)
	}
	return id, nil
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

func readJSON(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("ошибка записи ответа", "err", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// writeServiceError maps domain errors to HTTP codes: missing rows are 404,
// rejected transitions are 409, everything else is 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pgbooking.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err)
	default:
		slog.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}
