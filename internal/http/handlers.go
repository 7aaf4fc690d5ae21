package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/seatsurge/seatsurge/internal/adapters/crdb"
	mongoadapter "github.com/seatsurge/seatsurge/internal/adapters/mongo"
	"github.com/seatsurge/seatsurge/internal/admission"
	"github.com/seatsurge/seatsurge/internal/config"
	"github.com/seatsurge/seatsurge/internal/domain"
	"github.com/seatsurge/seatsurge/internal/idempotency"
	"github.com/seatsurge/seatsurge/internal/observability"
	"github.com/seatsurge/seatsurge/internal/queue"
	"github.com/seatsurge/seatsurge/internal/seatcache"
	"github.com/seatsurge/seatsurge/internal/seatlock"
)

type Handlers struct {
	cfg    *config.Config
	queue  *queue.Service
	issuer *admission.Issuer
	locks  *seatlock.Manager
	cache  *seatcache.Service
	events *crdb.Repository
	audit  *mongoadapter.AuditLogger
	idemp  *idempotency.Idempotency
	logger observability.Logger
}

func NewHandlers(cfg *config.Config, q *queue.Service, issuer *admission.Issuer, locks *seatlock.Manager, cache *seatcache.Service, events *crdb.Repository, audit *mongoadapter.AuditLogger, idemp *idempotency.Idempotency, logger observability.Logger) *Handlers {
	return &Handlers{
		cfg:    cfg,
		queue:  q,
		issuer: issuer,
		locks:  locks,
		cache:  cache,
		events: events,
		audit:  audit,
		idemp:  idemp,
		logger: logger,
	}
}

// Apply joins the caller to the event's admission queue. Duplicate POSTs
// carrying the same Idempotency-Key replay the stored response instead of
// hitting the queue twice.
func (h *Handlers) Apply(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	result := h.queue.Apply(r.Context(), eventID, userID)
	h.audit.LogAdmission(r.Context(), eventID, result, userID)

	status := http.StatusOK
	if result.Status == domain.AdmissionError {
		status = admissionStatusCode(result.Reason)
	}
	data, _ := json.Marshal(result)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: status, Result: data})
}

func (h *Handlers) QueueStatus(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	count, err := h.queue.WaitingCount(r.Context(), eventID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event_id": eventID,
		"waiting":  count,
	})
}

// PollQueue admits up to count waiting users: each polled user gets an
// access key. Operational surface, normally driven by the admission worker.
func (h *Handlers) PollQueue(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	var req struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Count <= 0 {
		http.Error(w, "count must be a positive integer", http.StatusBadRequest)
		return
	}

	users, err := h.queue.Poll(r.Context(), eventID, req.Count)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type admitted struct {
		UserID    int64  `json:"user_id"`
		AccessKey string `json:"access_key"`
	}
	out := make([]admitted, 0, len(users))
	for _, userID := range users {
		grant, err := h.issuer.GrantImmediateAccess(r.Context(), userID)
		if err != nil {
			h.logger.WithError(err).WithField("user_id", userID).Error("grant after poll failed")
			continue
		}
		out = append(out, admitted{UserID: userID, AccessKey: grant.Key})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event_id": eventID,
		"admitted": out,
	})
}

func (h *Handlers) LockSeat(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	seatID, ok := pathID(w, r, "seatID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	result := h.locks.LockSeatPermanently(r.Context(), eventID, seatID, userID)
	h.audit.LogSeatTransition(r.Context(), result)
	writeJSON(w, seatStatusCode(result), result)
}

func (h *Handlers) RestoreSeat(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	seatID, ok := pathID(w, r, "seatID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req struct {
		WithTTL bool `json:"with_ttl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := h.locks.RestoreSeatReservation(r.Context(), eventID, seatID, userID, req.WithTTL)
	h.audit.LogSeatTransition(r.Context(), result)
	writeJSON(w, seatStatusCode(result), result)
}

func (h *Handlers) SeatEligibility(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	seatID, ok := pathID(w, r, "seatID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.locks.CheckSeatLockEligibility(r.Context(), eventID, seatID, userID))
}

func (h *Handlers) LockAllSeats(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	result := h.locks.LockAllUserSeatsPermanently(r.Context(), eventID, userID)
	writeJSON(w, bulkStatusCode(result), result)
}

func (h *Handlers) RestoreAllSeats(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req struct {
		WithTTL bool `json:"with_ttl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result := h.locks.RestoreAllUserSeats(r.Context(), eventID, userID, req.WithTTL)
	writeJSON(w, bulkStatusCode(result), result)
}

func (h *Handlers) SeatMapStatus(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	status, err := h.cache.Status(r.Context(), eventID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handlers) ReleaseAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	if err := h.issuer.ReleaseAccess(r.Context(), userID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WarmUpCache rebuilds an event's seat map, from the persisted inventory
// by default or synthetically when total_seats is given.
func (h *Handlers) WarmUpCache(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	var req struct {
		TotalSeats int `json:"total_seats"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	var (
		count int
		err   error
	)
	if req.TotalSeats > 0 {
		count, err = h.cache.WarmUpSynthetic(r.Context(), eventID, req.TotalSeats)
	} else {
		count, err = h.cache.WarmUpFromInventory(r.Context(), eventID)
	}
	if err != nil {
		status := http.StatusInternalServerError
		if domainNotFound(err) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event_id": eventID,
		"seats":    count,
	})
}

func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	cleared, err := h.cache.Clear(r.Context(), eventID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event_id": eventID,
		"cleared":  cleared,
	})
}

// SetGate flips the persisted queue-active flag for a sale event.
func (h *Handlers) SetGate(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.events.SetQueueActive(r.Context(), eventID, req.Active); err != nil {
		status := http.StatusInternalServerError
		if domainNotFound(err) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// callerID reads the authenticated user from the X-User-ID header set by
// the auth layer in front of this service.
func callerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "missing or invalid X-User-ID", http.StatusUnauthorized)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func admissionStatusCode(reason domain.Reason) int {
	switch reason {
	case domain.ReasonAlreadyJoined:
		return http.StatusConflict
	case domain.ReasonTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func seatStatusCode(result domain.SeatLockResult) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.Reason {
	case domain.ReasonSeatNotFound:
		return http.StatusNotFound
	case domain.ReasonSeatNotOwner:
		return http.StatusForbidden
	case domain.ReasonSeatWrongState, domain.ReasonSeatExpired:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func bulkStatusCode(result domain.BulkSeatLockResult) int {
	if result.Success {
		return http.StatusOK
	}
	// Nothing-to-do is an empty-operation outcome, not a request error.
	if len(result.Seats) == 0 {
		return http.StatusOK
	}
	return http.StatusConflict
}

func domainNotFound(err error) bool {
	return errors.Is(err, domain.ErrEventNotFound) || errors.Is(err, domain.ErrSeatNotFound)
}
