package notification

// Status is the notification-level aggregate state, derived from the set of
// its deliveries' states.
type Status string

const (
	StatusQueued        Status = "queued"
	StatusDispatching   Status = "dispatching"
	StatusCompleted     Status = "completed"
	StatusPartiallySent Status = "partially-sent"
	StatusCancelled     Status = "cancelled"
)

// Active reports whether the aggregate may still have claimable deliveries.
func (s Status) Active() bool {
	switch s {
	case StatusQueued, StatusDispatching, StatusPartiallySent:
		return true
	}
	return false
}

// ComputeStatus derives the aggregate status from a delivery-status set.
// It is a pure function of its input: re-deriving from the same set always
// yields the same result, regardless of the order deliveries settled in.
//
// Note the deliberate convention for the all-failed edge case: a set where
// every delivery failed still computes to partially-sent rather than a
// distinct failed state. Downstream consumers rely on partially-sent as the
// single "something went wrong but the record is displayable" bucket.
func ComputeStatus(statuses []DeliveryStatus) Status {
	if len(statuses) == 0 {
		return StatusQueued
	}

	var queued, sending, delivered, failed, cancelled int
	for _, s := range statuses {
		switch s {
		case DeliveryQueued:
			queued++
		case DeliverySending, DeliverySent:
			sending++
		case DeliveryDelivered:
			delivered++
		case DeliveryFailed:
			failed++
		case DeliveryCancelled:
			cancelled++
		}
	}

	switch {
	case cancelled == len(statuses):
		return StatusCancelled
	case delivered+cancelled == len(statuses):
		return StatusCompleted
	case failed > 0 && (delivered > 0 || queued > 0):
		return StatusPartiallySent
	case queued == len(statuses):
		// Nothing has been claimed yet.
		return StatusQueued
	case queued > 0 || sending > 0:
		return StatusDispatching
	default:
		return StatusPartiallySent
	}
}

// RecomputeStatus re-derives the aggregate status from the full delivery
// set. Must be called after every delivery mutation; it never updates
// incrementally.
//
// A queued delivery that already recorded a failed attempt (rescheduled,
// waiting out its retry delay) counts as failed here. A notification whose
// in-app copy landed but whose push attempt bounced therefore reads as
// partially-sent between retries instead of sitting in dispatching, while
// the delivery itself stays queued and claimable for the next attempt.
func (n *Notification) RecomputeStatus() {
	statuses := make([]DeliveryStatus, len(n.Deliveries))
	for i, d := range n.Deliveries {
		statuses[i] = d.Status
		if d.Status == DeliveryQueued && d.FailureAt != nil {
			statuses[i] = DeliveryFailed
		}
	}
	n.Status = ComputeStatus(statuses)
}
