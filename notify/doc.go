// Package notify delivers one-time codes. Every Notifier makes exactly one
// bounded delivery attempt per call; redelivery is driven by the client
// through Resend.
package notify
