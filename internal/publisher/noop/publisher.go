// Package noop provides a publisher that discards events.
package noop

import "context"

// Publisher drops every event. Used when no event bus is configured.
type Publisher struct{}

// New returns a noop Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish discards the payload and reports success.
func (*Publisher) Publish(context.Context, string, any) (string, error) {
	return "noop", nil
}
