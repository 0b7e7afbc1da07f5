// Package store persists Notification aggregates and their embedded
// per-channel Delivery records, and provides the atomic claim-and-transition
// operation the dispatch scheduler depends on.
//
// Three implementations ship with the package:
//
//   - MemoryStorage: mutex-guarded maps, for tests and local development.
//   - MongoStorage: documents with embedded delivery arrays, claimed through
//     a conditional FindOneAndUpdate with array filters.
//   - PostgresStorage: deliveries as a relational table keyed by
//     (notification_id, channel), claimed through a conditional UPDATE with
//     a status guard, with embedded goose migrations.
//
// The claim contract is the concurrency core of the engine: Claim performs
// a single compare-and-swap style update keyed by notification id, channel
// and current delivery status. Two concurrent claims on the same delivery
// can never both succeed; the loser observes ErrClaimConflict and must
// skip. Every delivery-status mutation besides creation goes through Claim
// followed by UpdateDelivery on the now-owned record.
package store
