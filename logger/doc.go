// Package logger builds slog loggers with consistent output configuration
// and provides typed attribute helpers for the domain's common log fields.
//
// Usage:
//
//	log := logger.New(
//		logger.WithProduction("notifier"),
//	)
//	log.Info("notification dispatched",
//		logger.NotificationID(n.ID),
//		logger.Channel(ch),
//	)
package logger
