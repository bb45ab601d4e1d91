package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"
)

func intp(n int) *int { return &n }

func TestDecideInitialStatus(t *testing.T) {
	tests := []struct {
		name     string
		capacity *int
		active   int
		want     model.RegistrationStatus
	}{
		{"unlimited empty", nil, 0, model.StatusPending},
		{"unlimited busy", nil, 10_000, model.StatusPending},
		{"room left", intp(2), 1, model.StatusPending},
		{"exactly full", intp(2), 2, model.StatusWaitlist},
		{"over full", intp(2), 3, model.StatusWaitlist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecideInitialStatus(tt.capacity, tt.active))
		})
	}
}

func TestCanAcceptAndRemainingSlots(t *testing.T) {
	assert.True(t, CanAccept(nil, 99))
	assert.True(t, CanAccept(intp(1), 0))
	assert.False(t, CanAccept(intp(1), 1))

	n, unlimited := RemainingSlots(nil, 5)
	assert.True(t, unlimited)
	assert.Zero(t, n)

	n, unlimited = RemainingSlots(intp(5), 7)
	assert.False(t, unlimited)
	assert.Zero(t, n)
}

func TestLedgerProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 500).Draw(t, "capacity")
		active := rapid.IntRange(0, 1000).Draw(t, "active")

		status := DecideInitialStatus(&capacity, active)
		if (status == model.StatusPending) != CanAccept(&capacity, active) {
			t.Fatalf("status %s disagrees with CanAccept for capacity=%d active=%d", status, capacity, active)
		}

		remaining, unlimited := RemainingSlots(&capacity, active)
		if unlimited || remaining < 0 {
			t.Fatalf("bad remaining %d unlimited=%v", remaining, unlimited)
		}
		if CanAccept(&capacity, active) != (remaining > 0) {
			t.Fatalf("remaining=%d disagrees with CanAccept", remaining)
		}
		if active < capacity && remaining != capacity-active {
			t.Fatalf("remaining=%d want %d", remaining, capacity-active)
		}
	})
}
