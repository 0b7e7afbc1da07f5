// Package notification defines the core domain model for the delivery
// engine: the Notification aggregate, its per-channel Delivery records,
// and the aggregate lifecycle computation.
//
// A Notification is created once with one Delivery per requested channel
// and is then mutated only through delivery-state transitions. The
// aggregate status is always derived from the full Delivery set, never
// set directly by callers.
//
// # Basic Usage
//
//	notif, err := notification.New(notification.CreateParams{
//	    Audience:    notification.AudienceUser,
//	    RecipientID: "user-123",
//	    EventKey:    "company.verification.documents_requested",
//	    Topic:       "compliance",
//	    Priority:    notification.PriorityHigh,
//	    Title:       "Documents requested",
//	    Body:        "Your verification needs additional documents.",
//	    Channels:    []notification.Channel{notification.ChannelInApp, notification.ChannelPush},
//	})
//
// The returned aggregate holds a queued Delivery for every asynchronous
// channel and a delivered one for in-app, and its Status reflects that set.
package notification
