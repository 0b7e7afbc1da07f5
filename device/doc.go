// Package device tracks the push-token registrations of users' devices.
//
// The delivery engine reads active tokens when processing a push delivery
// and deactivates a token when the provider reports it as permanently
// invalid. Registration and unregistration happen at the application
// boundary (the client registers its token on login). Deactivation is
// idempotent, so the engine may safely repeat it on every provider report.
package device
