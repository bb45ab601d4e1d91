package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/repository"
)

// EventInput carries the writable fields of an event.
type EventInput struct {
	Organiser   string
	Title       string
	Description string
	Location    string
	State       model.EventState
	Capacity    *int
	StartsAt    *time.Time
	EndsAt      *time.Time
	FormFields  model.FormFields
}

// EventService exposes event management to committee members and event
// browsing to everyone.
type EventService struct {
	db         *sql.DB
	events     *repository.EventRepo
	invalidate func(eventID uint64)
	txTimeout  time.Duration
}

// NewEventService returns an EventService. invalidate, when non-nil, is
// called after every event write so cached registration analytics follow
// form changes. txTimeout bounds the locked update; zero means 5s.
func NewEventService(db *sql.DB, events *repository.EventRepo, txTimeout time.Duration, invalidate func(eventID uint64)) *EventService {
	if db == nil || events == nil {
		panic("nil dependency passed to NewEventService")
	}
	if invalidate == nil {
		invalidate = func(uint64) {}
	}
	if txTimeout <= 0 {
		txTimeout = 5 * time.Second
	}
	return &EventService{db: db, events: events, invalidate: invalidate, txTimeout: txTimeout}
}

// List returns published events, plus drafts for committee members.
func (s *EventService) List(ctx context.Context, who model.Identity) ([]model.Event, error) {
	list, err := s.events.List(ctx, who.IsCommittee())
	if err != nil {
		return nil, errors.Wrap(err, "list events")
	}
	return list, nil
}

// Get returns one event. Drafts are reported as not found to anyone but
// committee members.
func (s *EventService) Get(ctx context.Context, id uint64, who model.Identity) (*model.Event, error) {
	ev, err := s.events.FindVisible(ctx, id, who)
	if err != nil {
		return nil, translate(err, "get event")
	}
	return ev, nil
}

// Create stores a new event. New events default to draft.
func (s *EventService) Create(ctx context.Context, in EventInput, who model.Identity) (*model.Event, error) {
	ctx, span := tracer.Start(ctx, "Event.Service.Create")
	defer span.End()

	if err := requireCommittee(who); err != nil {
		return nil, err
	}
	if in.State == "" {
		in.State = model.EventDraft
	}
	if verr := validateEvent(in); verr != nil {
		return nil, verr
	}
	ev := eventFromInput(in)
	if err := s.events.Create(ctx, ev); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "create event")
	}
	return ev, nil
}

// Update replaces the writable fields of an event. The event row is locked
// for the duration, so a capacity change is ordered against concurrent
// accepts; capacity may not drop below the current accepted count.
func (s *EventService) Update(ctx context.Context, id uint64, in EventInput, who model.Identity) (*model.Event, error) {
	ctx, span := tracer.Start(ctx, "Event.Service.Update")
	defer span.End()

	if err := requireCommittee(who); err != nil {
		return nil, err
	}
	var ev *model.Event
	err := runInTx(ctx, s.db, s.txTimeout, func(ctx context.Context, tx *sql.Tx) error {
		cur, err := s.events.LockForUpdateTx(ctx, tx, id)
		if err != nil {
			return translate(err, "lock event")
		}
		if in.State == "" {
			in.State = cur.State
		}
		if verr := validateEvent(in); verr != nil {
			return verr
		}
		if in.Capacity != nil {
			active, err := s.events.CountActiveTx(ctx, tx, id)
			if err != nil {
				return errors.Wrap(err, "count accepted registrations")
			}
			if *in.Capacity < active {
				return errCapacityBelowActive
			}
		}
		ev = eventFromInput(in)
		ev.ID = id
		ev.CreatedAt = cur.CreatedAt
		return translate(s.events.UpdateTx(ctx, tx, ev), "update event")
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.invalidate(id)
	return ev, nil
}

// Delete removes an event together with its registrations.
func (s *EventService) Delete(ctx context.Context, id uint64, who model.Identity) error {
	if err := requireCommittee(who); err != nil {
		return err
	}
	if err := s.events.Delete(ctx, id); err != nil {
		return translate(err, "delete event")
	}
	s.invalidate(id)
	return nil
}

func eventFromInput(in EventInput) *model.Event {
	fields := in.FormFields
	if fields == nil {
		fields = model.FormFields{}
	}
	return &model.Event{
		Organiser:   in.Organiser,
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		State:       in.State,
		Capacity:    in.Capacity,
		StartsAt:    in.StartsAt,
		EndsAt:      in.EndsAt,
		FormFields:  fields,
	}
}

// validateEvent enforces the invariants the registration engine relies on:
// a positive capacity, a known state and a well-formed form.
func validateEvent(in EventInput) *ValidationError {
	problems := map[string]string{}
	if in.Capacity != nil && *in.Capacity <= 0 {
		problems["capacity"] = "must be a positive integer or null"
	}
	if !in.State.Valid() {
		problems["state"] = "must be draft or published"
	}
	if in.StartsAt != nil && in.EndsAt != nil && in.EndsAt.Before(*in.StartsAt) {
		problems["ends_at"] = "must not be before starts_at"
	}
	seen := map[string]bool{}
	for _, f := range in.FormFields {
		if seen[f.ID] {
			problems["form_fields."+f.ID] = "duplicate field id"
		}
		seen[f.ID] = true
		if (f.Type == model.FieldSelect || f.Type == model.FieldCheckbox) && len(f.Options) == 0 {
			problems["form_fields."+f.ID] = "choice fields need at least one option"
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Fields: problems}
}
