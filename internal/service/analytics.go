package service

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/repository"
)

// Analytics is the registration summary shown on the committee dashboard.
type Analytics struct {
	EventID  uint64                           `json:"event_id"`
	Total    int                              `json:"total"`
	ByStatus map[model.RegistrationStatus]int `json:"by_status"`
	ByDay    []DayCount                       `json:"by_day"`
	Fields   []FieldTally                     `json:"fields"`
}

// DayCount is the number of registrations created on one UTC day.
type DayCount struct {
	Day   string `json:"day"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// FieldTally counts answers per configured option of one choice field.
// Options follow the order declared on the event form.
type FieldTally struct {
	FieldID string          `json:"field_id"`
	Label   string          `json:"label"`
	Type    model.FieldType `json:"type"`
	Options []OptionCount   `json:"options"`
}

// OptionCount is one bucket of a FieldTally.
type OptionCount struct {
	Option string `json:"option"`
	Count  int    `json:"count"`
}

// Analytics aggregates an event's registrations for committee members.
// Results are cached briefly and dropped on every write to the event.
func (s *RegistrationService) Analytics(ctx context.Context, eventID uint64, who model.Identity) (*Analytics, error) {
	ctx, span := s.start(ctx, "Registration.Service.Analytics", eventID, who)
	defer span.End()

	if err := requireCommittee(who); err != nil {
		return nil, err
	}
	cached, gen := s.analytics.get(eventID)
	if cached != nil {
		return cached, nil
	}

	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, translate(err, "get event")
	}
	rows, err := s.regs.AnalyticsRows(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "load analytics rows")
	}
	a := Aggregate(ev, rows)
	s.analytics.put(eventID, gen, a)
	return a, nil
}

// analyticsCache holds computed summaries per event. Every invalidation
// bumps the event's generation; a summary computed under an older
// generation is never stored, so a write that lands mid-computation cannot
// be masked by a stale entry.
type analyticsCache struct {
	mu    sync.Mutex
	items *gocache.Cache
	gens  map[uint64]uint64
}

func newAnalyticsCache(ttl time.Duration) *analyticsCache {
	return &analyticsCache{items: gocache.New(ttl, 2*ttl), gens: map[uint64]uint64{}}
}

func analyticsKey(eventID uint64) string {
	return "analytics:" + strconv.FormatUint(eventID, 10)
}

// get returns the cached summary, or nil and the generation to pass to put.
func (c *analyticsCache) get(eventID uint64) (*Analytics, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.items.Get(analyticsKey(eventID)); ok {
		if a, ok := v.(*Analytics); ok {
			return a, 0
		}
	}
	return nil, c.gens[eventID]
}

// put stores a unless the event was invalidated after gen was read.
func (c *analyticsCache) put(eventID, gen uint64, a *Analytics) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[eventID] != gen {
		return false
	}
	c.items.SetDefault(analyticsKey(eventID), a)
	return true
}

func (c *analyticsCache) invalidate(eventID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[eventID]++
	c.items.Delete(analyticsKey(eventID))
}

// Aggregate builds the summary for ev from its registration rows. Every
// status and every configured option of a choice field is present even when
// its count is zero; answers naming options the form does not declare are
// ignored.
func Aggregate(ev *model.Event, rows []repository.AnalyticsRow) *Analytics {
	a := &Analytics{
		EventID:  ev.ID,
		Total:    len(rows),
		ByStatus: make(map[model.RegistrationStatus]int, len(model.Statuses)),
		ByDay:    []DayCount{},
		Fields:   []FieldTally{},
	}
	for _, st := range model.Statuses {
		a.ByStatus[st] = 0
	}

	type tally struct {
		field  model.FormField
		counts map[string]int
	}
	tallies := make([]tally, 0, len(ev.FormFields))
	for _, f := range ev.FormFields {
		if !f.Tallied() {
			continue
		}
		counts := make(map[string]int, len(f.Options))
		for _, opt := range f.Options {
			counts[opt] = 0
		}
		tallies = append(tallies, tally{field: f, counts: counts})
	}

	days := map[string]int{}
	for _, row := range rows {
		a.ByStatus[row.Status]++
		days[row.CreatedAt.UTC().Format("2006-01-02")]++
		for _, t := range tallies {
			for _, choice := range row.Answers.Choices(t.field.ID) {
				if _, ok := t.counts[choice]; ok {
					t.counts[choice]++
				}
			}
		}
	}

	for day, n := range days {
		a.ByDay = append(a.ByDay, DayCount{Day: day, Count: n})
	}
	sort.Slice(a.ByDay, func(i, j int) bool { return a.ByDay[i].Day < a.ByDay[j].Day })

	for _, t := range tallies {
		ft := FieldTally{FieldID: t.field.ID, Label: t.field.Label, Type: t.field.Type, Options: make([]OptionCount, 0, len(t.field.Options))}
		for _, opt := range t.field.Options {
			ft.Options = append(ft.Options, OptionCount{Option: opt, Count: t.counts[opt]})
		}
		a.Fields = append(a.Fields, ft)
	}
	return a
}
