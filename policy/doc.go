// Package policy decides whether a notification should be delivered to a
// recipient on a given channel.
//
// The resolver is a pure function over three read-only inputs: the
// recipient's stored Preferences (defaulted where absent), the
// notification's topic, priority and per-notification policy overrides, and
// the current instant (for quiet-hours evaluation). It never mutates state
// and never performs I/O, which keeps it trivially testable.
//
// Rule order, first match wins per channel:
//
//  1. Master switch off and priority below critical denies everything.
//  2. Per-notification channel override denies unconditionally.
//  3. Topic-level override, when present, is used verbatim.
//  4. Priority-level override, when present, is used verbatim.
//  5. The channel's global preference flag decides.
//  6. Quiet hours suppress non-critical push.
//  7. Critical push bypasses a disabled push flag unless the notification
//     explicitly opts out of the critical override.
//
// Quiet-hours parsing fails open: a malformed window or unknown timezone
// never suppresses delivery on account of a config error.
package policy
