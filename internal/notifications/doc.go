// Package notifications delivers session events via pluggable notifiers and
// hands interviewee packets to the delivery webhook.
//
// The default notifier publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Per-event toggles in [notifications] suppress individual event
// types without touching pipeline code, which depends only on the Service
// interface.
//
// Packet delivery is a JSON webhook contract; the receiving side owns the
// actual e-mail transport.
package notifications
