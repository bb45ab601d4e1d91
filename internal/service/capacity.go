package service

import "github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/model"

// DecideInitialStatus picks the status a new registration starts in. Pending
// registrations do not consume capacity, so the only question at creation is
// whether accepted registrations have already filled the event.
func DecideInitialStatus(capacity *int, activeCount int) model.RegistrationStatus {
	if CanAccept(capacity, activeCount) {
		return model.StatusPending
	}
	return model.StatusWaitlist
}

// CanAccept reports whether one more registration may become accepted. A nil
// capacity means unlimited.
func CanAccept(capacity *int, activeCount int) bool {
	return capacity == nil || activeCount < *capacity
}

// RemainingSlots returns how many more registrations may be accepted. The
// result is never negative; unlimited is true when capacity is nil.
func RemainingSlots(capacity *int, activeCount int) (n int, unlimited bool) {
	if capacity == nil {
		return 0, true
	}
	if n = *capacity - activeCount; n < 0 {
		n = 0
	}
	return n, false
}
