// Package notifier is a multi-channel notification delivery engine.
//
// A notification is a single logical message to a recipient, fanned out
// across one or more channels (in-app, push, email, sms, webhook). Each
// channel gets its own delivery record with an independent lifecycle;
// the aggregate status is derived from the full delivery set.
//
// The package splits into:
//
//   - notification: the aggregate model and lifecycle rules
//   - policy: recipient preferences and the delivery-policy resolver,
//     including quiet hours and the critical-priority bypass
//   - store: persistence and the atomic claim protocol (in-memory,
//     MongoDB and PostgreSQL implementations)
//   - device: push device token registry
//   - push: the push provider gateway client
//   - dispatch: the background scheduler, channel processors and the
//     retry backoff ladder
//   - realtime: in-app event publishing to connected clients
//
// Basic usage:
//
//	storage := store.NewMemoryStorage()
//	prefs := store.NewMemoryPreferences()
//
//	scheduler, err := dispatch.NewScheduler(storage, prefs,
//		dispatch.WithProcessors(
//			dispatch.NewInAppProcessor(realtime.NewHub()),
//		),
//	)
//	if err != nil {
//		return err
//	}
//	go scheduler.Start(ctx)
//
//	svc, err := notifier.NewService(storage, prefs,
//		notifier.WithScheduler(scheduler),
//	)
//	if err != nil {
//		return err
//	}
//
//	n, err := svc.Dispatch(ctx, notification.CreateParams{
//		Audience:        notification.AudienceUser,
//		RecipientUserID: userID,
//		EventKey:        "billing.invoice_paid",
//		Title:           "Invoice paid",
//		Body:            "Your invoice #1042 was paid.",
//		Channels:        []notification.Channel{notification.ChannelInApp, notification.ChannelPush},
//	})
package notifier
