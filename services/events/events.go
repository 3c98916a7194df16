// Package events fans detection changes out to live viewers and the broker.
package events

import (
	"BUREAU/models"
	"context"
)

const (
	DetectionCreated = "detection.created"
	DetectionUpdated = "detection.updated"
)

type DetectionEvent struct {
	Type      string           `json:"type"`
	Detection models.Detection `json:"detection"`
}

// Sink receives events. Publish must not block the caller for long and
// never fails the operation that produced the event.
type Sink interface {
	Publish(ctx context.Context, ev DetectionEvent)
}

// Multi delivers every event to each non-nil sink in order.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, ev DetectionEvent) {
	for _, s := range m {
		if s != nil {
			s.Publish(ctx, ev)
		}
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, DetectionEvent) {}
