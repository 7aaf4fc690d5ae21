package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/seatsurge/seatsurge/internal/domain"
	"github.com/seatsurge/seatsurge/internal/observability"
)

// Store is the narrow contract over the shared ordered set and its
// per-millisecond sequence counters. Every method maps to one atomic
// primitive of the backing store.
type Store interface {
	AddIfAbsent(ctx context.Context, eventID, userID int64, score int64) (bool, error)
	Rank(ctx context.Context, eventID, userID int64) (int64, bool, error)
	PopMin(ctx context.Context, eventID int64, count int) ([]int64, error)
	Size(ctx context.Context, eventID int64) (int64, error)
	NextSequence(ctx context.Context, eventID, unixMillis int64) (int64, error)
}

// EventConfig reads the persisted gating flag. The flag is read fresh on
// every apply; there is no reconciliation with members already queued when
// it flips mid-sale.
type EventConfig interface {
	GetSaleEvent(ctx context.Context, eventID int64) (*domain.SaleEvent, error)
}

// Granter issues an access key when the queue is bypassed.
type Granter interface {
	GrantImmediateAccess(ctx context.Context, userID int64) (domain.AccessGrant, error)
}

type Service struct {
	store  Store
	events EventConfig
	grants Granter
	logger observability.Logger
	now    func() time.Time
}

func NewService(store Store, events EventConfig, grants Granter, logger observability.Logger) *Service {
	return &Service{
		store:  store,
		events: events,
		grants: grants,
		logger: logger,
		now:    time.Now,
	}
}

// Apply joins the user to the event's admission queue and returns the
// 1-based rank, or grants immediate entry when the sale is not gated.
// Failures are returned as ERROR results, never as errors.
func (s *Service) Apply(ctx context.Context, eventID, userID int64) domain.AdmissionResult {
	log := s.logger.WithField("event_id", eventID).WithField("user_id", userID)

	gated := true
	ev, err := s.events.GetSaleEvent(ctx, eventID)
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		// An unconfigured sale never bypasses the queue.
	case err != nil:
		log.WithError(err).Error("gating flag lookup failed")
		return fail(domain.ReasonServerError, "could not determine queue state")
	default:
		gated = ev.QueueActive
	}

	if !gated {
		grant, err := s.grants.GrantImmediateAccess(ctx, userID)
		if err != nil {
			log.WithError(err).Error("immediate access grant failed")
			return fail(domain.ReasonServerError, "could not grant access")
		}
		log.Info("queue inactive, immediate entry granted")
		observability.AdmissionsTotal.WithLabelValues(string(domain.AdmissionImmediateEntry)).Inc()
		return domain.ImmediateEntry(grant.Key)
	}

	score, err := s.uniqueScore(ctx, eventID)
	if errors.Is(err, domain.ErrTooManyRequests) {
		log.Warn("sequence space exhausted within one millisecond")
		return fail(domain.ReasonTooManyRequests, "join rate exceeded, try again")
	}
	if err != nil {
		log.WithError(err).Error("score generation failed")
		return fail(domain.ReasonServerError, "could not generate queue position")
	}

	added, err := s.store.AddIfAbsent(ctx, eventID, userID, score)
	if err != nil {
		log.WithError(err).Error("queue insert failed")
		return fail(domain.ReasonServerError, "could not join queue")
	}
	if !added {
		log.Warn("duplicate queue join rejected")
		return fail(domain.ReasonAlreadyJoined, "already in the waiting queue")
	}

	rankIndex, found, err := s.store.Rank(ctx, eventID, userID)
	if err != nil || !found {
		// Should not happen right after a successful atomic insert.
		log.WithError(err).Error("rank lookup failed after insert")
		return fail(domain.ReasonServerError, "could not resolve queue position")
	}

	log.WithField("score", score).WithField("rank", rankIndex+1).Info("joined waiting queue")
	observability.AdmissionsTotal.WithLabelValues(string(domain.AdmissionWaiting)).Inc()
	return domain.Waiting(rankIndex + 1)
}

// Poll atomically removes and returns up to count users in arrival order.
// Returns fewer when the queue is shorter; never waits for more entries.
func (s *Service) Poll(ctx context.Context, eventID int64, count int) ([]int64, error) {
	users, err := s.store.PopMin(ctx, eventID, count)
	if err != nil {
		return nil, errors.Wrap(err, "poll queue")
	}
	observability.PollBatchSize.Observe(float64(len(users)))
	return users, nil
}

// WaitingCount returns the live size of the event's queue.
func (s *Service) WaitingCount(ctx context.Context, eventID int64) (int64, error) {
	size, err := s.store.Size(ctx, eventID)
	if err != nil {
		return 0, errors.Wrap(err, "queue size")
	}
	observability.QueueWaiting.WithLabelValues(strconv.FormatInt(eventID, 10)).Set(float64(size))
	return size, nil
}

// uniqueScore builds a strictly unique arrival score from the current
// millisecond and an atomic per-millisecond sequence. Exhausting the
// sequence space is a hard capacity signal, not retried here.
func (s *Service) uniqueScore(ctx context.Context, eventID int64) (int64, error) {
	ts := s.now().UnixMilli()
	seq, err := s.store.NextSequence(ctx, eventID, ts)
	if err != nil {
		return 0, err
	}
	if seq > domain.MaxSequence {
		return 0, domain.ErrTooManyRequests
	}
	return domain.ComposeScore(ts, seq), nil
}

func fail(reason domain.Reason, message string) domain.AdmissionResult {
	observability.AdmissionsTotal.WithLabelValues(string(domain.AdmissionError)).Inc()
	return domain.AdmissionFailure(reason, message)
}
