package es

import (
	"errors"
	"time"
)

type EventType string
type AggregateType string

// Event is one immutable entry in an aggregate's stream. Data holds the
// event payload; concrete payload types live with each aggregate package.
type Event struct {
	Type     EventType `json:"eventType"`
	Data     any       `json:"eventData"`
	Metadata Metadata  `json:"metadata"`
}

// Metadata travels with every event. Position is only meaningful on events
// read back from the global log.
type Metadata struct {
	EventID       string        `json:"eventId,omitempty"`
	CorrelationID string        `json:"correlationId,omitempty"`
	AggregateID   string        `json:"aggregateId"`
	AggregateType AggregateType `json:"aggregateType"`
	Version       int           `json:"version"`
	Source        string        `json:"source,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	Position      int64         `json:"position,omitempty"`
}

func (e Event) Validate() error {
	if e.Metadata.AggregateID == "" {
		return errors.New("invalid aggregate ID")
	}
	if e.Metadata.AggregateType == "" {
		return errors.New("aggregate type must not be empty")
	}
	if e.Type == "" {
		return errors.New("event type must not be empty")
	}
	if e.Metadata.Version <= 0 {
		return errors.New("invalid version")
	}
	return nil
}

// Snapshot is a point-in-time capture of aggregate state at Version,
// stored opaquely by the event store.
type Snapshot struct {
	AggregateType AggregateType `json:"aggregateType"`
	AggregateID   string        `json:"aggregateId"`
	State         any           `json:"state"`
	Version       int           `json:"version"`
}
