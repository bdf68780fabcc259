package es

type EventSourcedAggregate struct {
	committedEvents   []Event
	uncommittedEvents []Event
}

// Record tracks events produced by a command so a later save can append
// them to the aggregate's stream.
func (a *EventSourcedAggregate) Record(events ...Event) {
	a.uncommittedEvents = append(a.uncommittedEvents, events...)
}

func (a *EventSourcedAggregate) UncommittedEvents() []Event {
	return a.uncommittedEvents
}

func (a *EventSourcedAggregate) Commit() {
	a.committedEvents = append(a.committedEvents, a.uncommittedEvents...)
	a.uncommittedEvents = nil
}

// Discard drops uncommitted events without persisting them.
func (a *EventSourcedAggregate) Discard() {
	a.uncommittedEvents = nil
}
