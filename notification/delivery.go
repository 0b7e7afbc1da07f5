package notification

import "time"

// DeliveryStatus is the per-channel delivery state.
type DeliveryStatus string

const (
	DeliveryQueued    DeliveryStatus = "queued"
	DeliverySending   DeliveryStatus = "sending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryCancelled DeliveryStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s DeliveryStatus) Terminal() bool {
	switch s {
	case DeliveryDelivered, DeliveryFailed, DeliveryCancelled:
		return true
	}
	return false
}

// Delivery is the per-channel attempt lineage of a Notification.
type Delivery struct {
	Channel           Channel        `json:"channel" bson:"channel"`
	Status            DeliveryStatus `json:"status" bson:"status"`
	AttemptCount      int            `json:"attempt_count" bson:"attempt_count"`
	RequestedAt       time.Time      `json:"requested_at" bson:"requested_at"`
	SentAt            *time.Time     `json:"sent_at,omitempty" bson:"sent_at,omitempty"`
	DeliveredAt       *time.Time     `json:"delivered_at,omitempty" bson:"delivered_at,omitempty"`
	FailureAt         *time.Time     `json:"failure_at,omitempty" bson:"failure_at,omitempty"`
	NextRetryAt       *time.Time     `json:"next_retry_at,omitempty" bson:"next_retry_at,omitempty"`
	ErrorCode         string         `json:"error_code,omitempty" bson:"error_code,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty" bson:"error_message,omitempty"`
	ProviderMessageID string         `json:"provider_message_id,omitempty" bson:"provider_message_id,omitempty"`
}

func newDelivery(ch Channel, now time.Time) Delivery {
	// Synchronous channels start queued too: they are claimed and delivered
	// in-process at dispatch time, so every status mutation goes through
	// the same claim path.
	return Delivery{
		Channel:     ch,
		Status:      DeliveryQueued,
		RequestedAt: now,
	}
}

// Claimable reports whether the delivery can be claimed for processing at
// the given instant: queued or sending, with no pending retry delay.
func (d *Delivery) Claimable(now time.Time) bool {
	if d.Status != DeliveryQueued && d.Status != DeliverySending {
		return false
	}
	return d.NextRetryAt == nil || !d.NextRetryAt.After(now)
}

// MarkDelivered moves the delivery to its terminal delivered state.
func (d *Delivery) MarkDelivered(providerMessageID string) {
	now := time.Now().UTC()
	d.Status = DeliveryDelivered
	d.DeliveredAt = &now
	d.NextRetryAt = nil
	d.ErrorCode = ""
	d.ErrorMessage = ""
	if providerMessageID != "" {
		d.ProviderMessageID = providerMessageID
	}
}

// MarkCancelled moves the delivery to its terminal cancelled state with a
// machine-readable reason. Policy denials and operator kill switches land
// here; cancellations are never retried.
func (d *Delivery) MarkCancelled(code, message string) {
	now := time.Now().UTC()
	d.Status = DeliveryCancelled
	d.FailureAt = &now
	d.NextRetryAt = nil
	d.ErrorCode = code
	d.ErrorMessage = message
}

// MarkFailed moves the delivery to its terminal failed state after the
// retry budget is exhausted.
func (d *Delivery) MarkFailed(code, message string) {
	now := time.Now().UTC()
	d.Status = DeliveryFailed
	d.FailureAt = &now
	d.NextRetryAt = nil
	d.ErrorCode = code
	d.ErrorMessage = message
}

// Reschedule puts the delivery back in the queue with a retry delay after a
// transient failure. AttemptCount is untouched here; it is incremented by
// the claim operation.
func (d *Delivery) Reschedule(nextRetryAt time.Time, code, message string) {
	now := time.Now().UTC()
	d.Status = DeliveryQueued
	d.FailureAt = &now
	d.NextRetryAt = &nextRetryAt
	d.ErrorCode = code
	d.ErrorMessage = message
}
