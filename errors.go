package notifier

import "errors"

var (
	// ErrDeviceRegistryNotConfigured is returned by device operations when
	// the service was built without a device registry.
	ErrDeviceRegistryNotConfigured = errors.New("device registry not configured")

	// ErrPreferencesNotConfigured is returned by preference updates when the
	// service was built without preferences storage.
	ErrPreferencesNotConfigured = errors.New("preferences storage not configured")
)
