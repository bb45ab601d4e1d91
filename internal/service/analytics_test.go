package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/repository"
	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/testutil"
)

var dietField = model.FormField{ID: "diet", Label: "Dietary requirements", Type: model.FieldSelect, Options: []string{"none", "vegetarian", "vegan"}}

func TestAggregateKeepsZeroBuckets(t *testing.T) {
	ev := &model.Event{ID: 7, FormFields: model.FormFields{
		dietField,
		{ID: "bio", Label: "Bio", Type: model.FieldTextarea},
		{ID: "langs", Label: "Languages", Type: model.FieldCheckbox, Options: []string{"go", "rust"}},
	}}
	day1 := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	day2 := day1.Add(2 * time.Hour)
	rows := []repository.AnalyticsRow{
		{Status: model.StatusAccepted, CreatedAt: day2, Answers: model.Answers{"diet": "vegan", "langs": []any{"go", "rust"}}},
		{Status: model.StatusPending, CreatedAt: day1, Answers: model.Answers{"diet": "none", "langs": []any{"go"}}},
		{Status: model.StatusPending, CreatedAt: day1, Answers: model.Answers{"diet": "vegan", "langs": []any{"cobol"}}},
	}

	a := Aggregate(ev, rows)

	assert.Equal(t, uint64(7), a.EventID)
	assert.Equal(t, 3, a.Total)
	assert.Equal(t, map[model.RegistrationStatus]int{
		model.StatusPending:  2,
		model.StatusAccepted: 1,
		model.StatusWaitlist: 0,
		model.StatusRejected: 0,
	}, a.ByStatus)
	assert.Equal(t, []DayCount{{Day: "2026-03-01", Count: 2}, {Day: "2026-03-02", Count: 1}}, a.ByDay)

	require.Len(t, a.Fields, 2)
	assert.Equal(t, "diet", a.Fields[0].FieldID)
	assert.Equal(t, []OptionCount{{"none", 1}, {"vegetarian", 0}, {"vegan", 2}}, a.Fields[0].Options)
	assert.Equal(t, "langs", a.Fields[1].FieldID)
	assert.Equal(t, []OptionCount{{"go", 2}, {"rust", 1}}, a.Fields[1].Options)
}

func TestAggregateEmpty(t *testing.T) {
	a := Aggregate(&model.Event{ID: 1}, nil)
	assert.Zero(t, a.Total)
	assert.NotNil(t, a.ByDay)
	assert.NotNil(t, a.Fields)
	assert.Len(t, a.ByStatus, len(model.Statuses))
}

func TestAnalyticsCacheInvalidatedByWrites(t *testing.T) {
	svc, db, _ := newEngine(t)
	ev := testutil.SeedEvent(t, db, testutil.WithFields(dietField))
	ctx := context.Background()
	committee := testutil.Committee()

	_, err := svc.Create(ctx, ev.ID, testutil.Member(), model.Answers{"diet": "vegan"})
	require.NoError(t, err)

	first, err := svc.Analytics(ctx, ev.ID, committee)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Total)

	// A row written behind the engine's back is invisible until the cache drops.
	testutil.SeedRegistration(t, db, ev.ID, testutil.Member(), model.StatusRejected, time.Now())
	cached, err := svc.Analytics(ctx, ev.ID, committee)
	require.NoError(t, err)
	assert.Same(t, first, cached)

	_, err = svc.Create(ctx, ev.ID, testutil.Member(), model.Answers{"diet": "none"})
	require.NoError(t, err)
	fresh, err := svc.Analytics(ctx, ev.ID, committee)
	require.NoError(t, err)
	assert.Equal(t, 3, fresh.Total)
	assert.Equal(t, 1, fresh.ByStatus[model.StatusRejected])
	assert.Equal(t, []OptionCount{{"none", 1}, {"vegetarian", 0}, {"vegan", 1}}, fresh.Fields[0].Options)
}

func TestAnalyticsAccess(t *testing.T) {
	svc, db, _ := newEngine(t)
	ev := testutil.SeedEvent(t, db)

	_, err := svc.Analytics(context.Background(), ev.ID, testutil.Member())
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.Analytics(context.Background(), ev.ID+100, testutil.Committee())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAnalyticsCacheDropsResultsComputedBeforeInvalidation(t *testing.T) {
	c := newAnalyticsCache(time.Minute)
	stale := &Analytics{EventID: 3, Total: 1}

	cached, gen := c.get(3)
	require.Nil(t, cached)
	// A write commits while the summary is being computed.
	c.invalidate(3)
	assert.False(t, c.put(3, gen, stale))
	cached, gen = c.get(3)
	assert.Nil(t, cached)

	fresh := &Analytics{EventID: 3, Total: 2}
	assert.True(t, c.put(3, gen, fresh))
	cached, _ = c.get(3)
	assert.Same(t, fresh, cached)

	// Other events keep their own generation.
	_, other := c.get(4)
	assert.True(t, c.put(4, other, &Analytics{EventID: 4}))
}
