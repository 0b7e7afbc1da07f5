// Package push sends mobile push notifications through an external
// provider gateway.
//
// The provider sits behind the Client interface so the delivery engine can
// be tested against a fake without network access; Expo is the shipped
// implementation. A batch call returns one Result per message in input
// order, and a failing message never fails its batch siblings. A
// network-level failure of a whole call surfaces as a failure for every
// message in that call.
package push
