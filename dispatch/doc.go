// Package dispatch runs the background delivery engine: a ticker-driven
// scheduler that scans storage for due deliveries, claims them atomically,
// runs the matching channel processor and records the outcome.
//
// The claim is the concurrency primitive. Multiple scheduler instances may
// point at the same storage; whoever wins the compare-and-set on the
// delivery processes it, everyone else sees a claim conflict and moves on.
//
// Transient failures are rescheduled on a fixed backoff ladder until the
// notification's retry budget runs out, then the delivery fails terminally.
// Policy denials and operator kill switches cancel the delivery instead and
// are never retried.
//
// Usage:
//
//	scheduler, err := dispatch.NewScheduler(storage, prefs,
//		dispatch.WithProcessors(
//			dispatch.NewPushProcessor(registry, expoClient),
//			dispatch.NewInAppProcessor(publisher),
//		),
//		dispatch.WithInterval(10*time.Second),
//	)
//	if err != nil {
//		return err
//	}
//	go scheduler.Start(ctx)
package dispatch
