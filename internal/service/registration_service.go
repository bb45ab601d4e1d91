// Package service implements the registration transition engine and the
// event management operations that sit behind the HTTP handlers. Every
// operation takes the caller's model.Identity explicitly.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/queue"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/repository"
)

var tracer = otel.Tracer("github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/service")

// StatusPublisher receives status changes after their transaction commits.
type StatusPublisher interface {
	Publish(ctx context.Context, events ...queue.RegistrationStatusChanged) error
}

// Options tunes a RegistrationService. Zero values fall back to defaults.
type Options struct {
	TxTimeout    time.Duration // bounds each transaction, lock wait included
	AnalyticsTTL time.Duration // lifetime of cached analytics results
	Publisher    StatusPublisher
	Logger       *slog.Logger
}

// RegistrationService is the registration transition engine. Capacity
// sensitive writes lock the parent event row first, so concurrent decisions
// about one event are serialised while different events never contend.
type RegistrationService struct {
	db        *sql.DB
	events    *repository.EventRepo
	regs      *repository.RegistrationRepo
	users     *repository.UserRepo
	publisher StatusPublisher
	analytics *analyticsCache
	txTimeout time.Duration
	log       *slog.Logger
}

// NewRegistrationService wires the engine to its repositories. All
// repositories must be non-nil.
func NewRegistrationService(db *sql.DB, events *repository.EventRepo, regs *repository.RegistrationRepo, users *repository.UserRepo, opts Options) *RegistrationService {
	if db == nil || events == nil || regs == nil || users == nil {
		panic("nil dependency passed to NewRegistrationService")
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = 5 * time.Second
	}
	if opts.AnalyticsTTL <= 0 {
		opts.AnalyticsTTL = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &RegistrationService{
		db:        db,
		events:    events,
		regs:      regs,
		users:     users,
		publisher: opts.Publisher,
		analytics: newAnalyticsCache(opts.AnalyticsTTL),
		txTimeout: opts.TxTimeout,
		log:       opts.Logger,
	}
}

// BatchResult reports the outcome of a batch operation.
type BatchResult struct {
	Count   int      `json:"count"`
	UserIDs []string `json:"user_ids"`
}

// Create registers the caller for an event. The initial status is pending
// while accepted registrations leave room, waitlist otherwise. Draft events
// are reported as not found to non-committee callers.
func (s *RegistrationService) Create(ctx context.Context, eventID uint64, who model.Identity, answers model.Answers) (*model.RegistrationDetail, error) {
	ctx, span := s.start(ctx, "Registration.Service.Create", eventID, who)
	defer span.End()

	if !who.Valid() {
		return nil, errNoIdentity
	}
	if answers == nil {
		answers = model.Answers{}
	}

	var detail *model.RegistrationDetail
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		ev, err := s.events.LockForUpdateTx(ctx, tx, eventID)
		if err != nil {
			return translate(err, "lock event")
		}
		if !ev.Published() && !who.IsCommittee() {
			return errEventNotFound
		}
		if verr := validateAnswers(ev.FormFields, answers); verr != nil {
			return verr
		}

		user := &model.User{ID: who.UserID, Email: who.Email, Name: who.Name, Role: who.Role}
		if err := s.users.UpsertTx(ctx, tx, user); err != nil {
			return errors.Wrap(err, "upsert user")
		}

		if _, err := s.regs.GetTx(ctx, tx, eventID, who.UserID); err == nil {
			return errAlreadyRegistered
		} else if !errors.Is(err, repository.ErrRegistrationNotFound) {
			return errors.Wrap(err, "lookup registration")
		}

		active, err := s.events.CountActiveTx(ctx, tx, eventID)
		if err != nil {
			return errors.Wrap(err, "count accepted registrations")
		}
		reg := &model.Registration{
			UserID:  who.UserID,
			EventID: eventID,
			Status:  DecideInitialStatus(ev.Capacity, active),
			Answers: answers,
		}
		if err := s.regs.InsertTx(ctx, tx, reg); err != nil {
			return translate(err, "insert registration")
		}
		detail, err = s.regs.GetDetailTx(ctx, tx, eventID, who.UserID)
		return errors.Wrap(err, "reload registration")
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("registration.status", string(detail.Status)))
	s.afterCommit(ctx, eventID, queue.RegistrationStatusChanged{
		EventID:   eventID,
		UserID:    who.UserID,
		NewStatus: string(detail.Status),
		Action:    queue.ActionCreated,
	})
	return detail, nil
}

// Update moves one registration to status. Only committee members may call
// it. Accepting a registration that is not already accepted re-counts
// accepted registrations under the event lock and fails with a conflict when
// the event is full, leaving the registration unchanged.
func (s *RegistrationService) Update(ctx context.Context, eventID uint64, userID string, status model.RegistrationStatus, who model.Identity) (*model.RegistrationDetail, error) {
	ctx, span := s.start(ctx, "Registration.Service.Update", eventID, who)
	defer span.End()

	if err := requireCommittee(who); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, invalid("status", "must be one of pending, accepted, waitlist, rejected")
	}

	var (
		detail *model.RegistrationDetail
		old    model.RegistrationStatus
	)
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		ev, err := s.events.LockForUpdateTx(ctx, tx, eventID)
		if err != nil {
			return translate(err, "lock event")
		}
		cur, err := s.regs.GetTx(ctx, tx, eventID, userID)
		if err != nil {
			return translate(err, "lookup registration")
		}
		old = cur.Status

		if status == model.StatusAccepted && cur.Status != model.StatusAccepted {
			active, err := s.events.CountActiveTx(ctx, tx, eventID)
			if err != nil {
				return errors.Wrap(err, "count accepted registrations")
			}
			if !CanAccept(ev.Capacity, active) {
				return errCapacityReached
			}
		}
		if cur.Status != status {
			if err := s.regs.UpdateStatusTx(ctx, tx, eventID, userID, status); err != nil {
				return translate(err, "update registration")
			}
		}
		detail, err = s.regs.GetDetailTx(ctx, tx, eventID, userID)
		return errors.Wrap(err, "reload registration")
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if old != status {
		s.afterCommit(ctx, eventID, queue.RegistrationStatusChanged{
			EventID:   eventID,
			UserID:    userID,
			OldStatus: string(old),
			NewStatus: string(status),
			Action:    queue.ActionUpdated,
		})
	}
	return detail, nil
}

// AcceptUntilCapacity accepts pending then waitlisted registrations, oldest
// first within each tier, until the event is full. Unlimited events accept
// every candidate.
func (s *RegistrationService) AcceptUntilCapacity(ctx context.Context, eventID uint64, who model.Identity) (*BatchResult, error) {
	ctx, span := s.start(ctx, "Registration.Service.AcceptUntilCapacity", eventID, who)
	defer span.End()

	if err := requireCommittee(who); err != nil {
		return nil, err
	}

	result := &BatchResult{UserIDs: []string{}}
	var accepted []model.Registration
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		ev, err := s.events.LockForUpdateTx(ctx, tx, eventID)
		if err != nil {
			return translate(err, "lock event")
		}
		active, err := s.events.CountActiveTx(ctx, tx, eventID)
		if err != nil {
			return errors.Wrap(err, "count accepted registrations")
		}
		remaining, unlimited := RemainingSlots(ev.Capacity, active)
		limit := remaining
		if unlimited {
			limit = -1
		} else if remaining == 0 {
			return nil
		}

		accepted, err = s.regs.ListPromotableTx(ctx, tx, eventID, limit)
		if err != nil {
			return errors.Wrap(err, "list promotable registrations")
		}
		ids := make([]uint64, 0, len(accepted))
		for _, reg := range accepted {
			ids = append(ids, reg.ID)
		}
		_, err = s.regs.UpdateStatusByIDsTx(ctx, tx, ids, model.StatusAccepted)
		return errors.Wrap(err, "accept registrations")
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	changes := make([]queue.RegistrationStatusChanged, 0, len(accepted))
	for _, reg := range accepted {
		result.UserIDs = append(result.UserIDs, reg.UserID)
		changes = append(changes, queue.RegistrationStatusChanged{
			EventID:   eventID,
			UserID:    reg.UserID,
			OldStatus: string(reg.Status),
			NewStatus: string(model.StatusAccepted),
			Action:    queue.ActionBatchAccepted,
		})
	}
	result.Count = len(result.UserIDs)
	span.SetAttributes(attribute.Int("registration.accepted", result.Count))
	s.afterCommit(ctx, eventID, changes...)
	return result, nil
}

// BatchUpdateStatus sets status on the listed users' registrations to one
// event. Non-accept statuses are applied unconditionally. A batch accept is
// all-or-nothing: it fails with a conflict when the registrations it would
// newly accept do not fit in the remaining capacity. User ids without a
// registration are skipped.
func (s *RegistrationService) BatchUpdateStatus(ctx context.Context, eventID uint64, userIDs []string, status model.RegistrationStatus, who model.Identity) (*BatchResult, error) {
	ctx, span := s.start(ctx, "Registration.Service.BatchUpdateStatus", eventID, who)
	defer span.End()

	if err := requireCommittee(who); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, invalid("status", "must be one of pending, accepted, waitlist, rejected")
	}
	userIDs = dedupe(userIDs)
	if len(userIDs) == 0 {
		return nil, invalid("user_ids", "at least one user id is required")
	}

	var existing []model.Registration
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		ev, err := s.events.LockForUpdateTx(ctx, tx, eventID)
		if err != nil {
			return translate(err, "lock event")
		}
		existing, err = s.regs.ListByUsersTx(ctx, tx, eventID, userIDs)
		if err != nil {
			return errors.Wrap(err, "list registrations")
		}
		if len(existing) == 0 {
			return nil
		}

		if status == model.StatusAccepted {
			newlyAccepted := 0
			for _, reg := range existing {
				if reg.Status != model.StatusAccepted {
					newlyAccepted++
				}
			}
			active, err := s.events.CountActiveTx(ctx, tx, eventID)
			if err != nil {
				return errors.Wrap(err, "count accepted registrations")
			}
			if remaining, unlimited := RemainingSlots(ev.Capacity, active); !unlimited && newlyAccepted > remaining {
				return errCapacityReached
			}
		}

		ids := make([]string, 0, len(existing))
		for _, reg := range existing {
			ids = append(ids, reg.UserID)
		}
		_, err = s.regs.UpdateStatusByUsersTx(ctx, tx, eventID, ids, status)
		return errors.Wrap(err, "update registrations")
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := &BatchResult{UserIDs: make([]string, 0, len(existing))}
	var changes []queue.RegistrationStatusChanged
	for _, reg := range existing {
		result.UserIDs = append(result.UserIDs, reg.UserID)
		if reg.Status == status {
			continue
		}
		changes = append(changes, queue.RegistrationStatusChanged{
			EventID:   eventID,
			UserID:    reg.UserID,
			OldStatus: string(reg.Status),
			NewStatus: string(status),
			Action:    queue.ActionBatchUpdated,
		})
	}
	result.Count = len(result.UserIDs)
	s.afterCommit(ctx, eventID, changes...)
	return result, nil
}

// Delete removes a registration. The owning user and committee members may
// delete; nobody is promoted in its place. Deleting a registration that no
// longer exists reports not found.
func (s *RegistrationService) Delete(ctx context.Context, eventID uint64, userID string, who model.Identity) (*model.RegistrationDetail, error) {
	ctx, span := s.start(ctx, "Registration.Service.Delete", eventID, who)
	defer span.End()

	if !who.Valid() {
		return nil, errNoIdentity
	}
	if who.UserID != userID && !who.IsCommittee() {
		return nil, errNotOwner
	}

	var detail *model.RegistrationDetail
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		detail, err = s.regs.GetDetailTx(ctx, tx, eventID, userID)
		if err != nil {
			return translate(err, "lookup registration")
		}
		return translate(s.regs.DeleteTx(ctx, tx, eventID, userID), "delete registration")
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.afterCommit(ctx, eventID, queue.RegistrationStatusChanged{
		EventID:   eventID,
		UserID:    userID,
		OldStatus: string(detail.Status),
		Action:    queue.ActionDeleted,
	})
	return detail, nil
}

// Get returns one registration to its owner or to a committee member.
func (s *RegistrationService) Get(ctx context.Context, eventID uint64, userID string, who model.Identity) (*model.RegistrationDetail, error) {
	ctx, span := s.start(ctx, "Registration.Service.Get", eventID, who)
	defer span.End()

	if !who.Valid() {
		return nil, errNoIdentity
	}
	if who.UserID != userID && !who.IsCommittee() {
		return nil, errNotOwner
	}
	d, err := s.regs.GetDetail(ctx, eventID, userID)
	if err != nil {
		return nil, translate(err, "get registration")
	}
	return d, nil
}

// ListForEvent returns an event's registrations to committee members,
// optionally filtered by status.
func (s *RegistrationService) ListForEvent(ctx context.Context, eventID uint64, status model.RegistrationStatus, who model.Identity) ([]model.RegistrationDetail, error) {
	ctx, span := s.start(ctx, "Registration.Service.ListForEvent", eventID, who)
	defer span.End()

	if err := requireCommittee(who); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, invalid("status", "must be one of pending, accepted, waitlist, rejected")
	}
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, translate(err, "get event")
	}
	list, err := s.regs.ListByEvent(ctx, eventID, status)
	if err != nil {
		return nil, errors.Wrap(err, "list registrations")
	}
	return list, nil
}

// ListMine returns every registration held by the caller.
func (s *RegistrationService) ListMine(ctx context.Context, who model.Identity) ([]model.RegistrationDetail, error) {
	if !who.Valid() {
		return nil, errNoIdentity
	}
	list, err := s.regs.ListByUser(ctx, who.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "list registrations")
	}
	return list, nil
}

// InvalidateAnalytics drops the cached aggregation for an event.
func (s *RegistrationService) InvalidateAnalytics(eventID uint64) {
	s.analytics.invalidate(eventID)
}

// inTx runs fn in a transaction bounded by the configured timeout.
func (s *RegistrationService) inTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return runInTx(ctx, s.db, s.txTimeout, fn)
}

// afterCommit invalidates cached analytics and publishes the changes. Publish
// failures are logged; the write has already committed.
func (s *RegistrationService) afterCommit(ctx context.Context, eventID uint64, changes ...queue.RegistrationStatusChanged) {
	s.InvalidateAnalytics(eventID)
	if s.publisher == nil || len(changes) == 0 {
		return
	}
	now := time.Now().UTC()
	for i := range changes {
		changes[i].OccurredAt = now
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, changes...); err != nil {
		s.log.Warn("publish registration status changes failed", "event_id", eventID, "count", len(changes), "err", err)
	}
}

func (s *RegistrationService) start(ctx context.Context, name string, eventID uint64, who model.Identity) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int64("event.id", int64(eventID)),
		attribute.String("caller.role", string(who.Role)),
	))
}

func requireCommittee(who model.Identity) error {
	if !who.Valid() {
		return errNoIdentity
	}
	if !who.IsCommittee() {
		return errCommitteeOnly
	}
	return nil
}

// translate maps repository sentinels onto the service taxonomy and wraps
// anything else as an internal failure.
func translate(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrEventNotFound):
		return errEventNotFound
	case errors.Is(err, repository.ErrRegistrationNotFound):
		return errRegistrationNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return errAlreadyRegistered
	}
	return errors.Wrap(err, op)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

