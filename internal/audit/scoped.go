// Chronicle - Audit Event Logging Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chronicle

package audit

// EventOption sets optional fields on events built by the scoped loggers.
type EventOption func(*Event)

// WithDescription sets the human-readable summary.
func WithDescription(desc string) EventOption {
	return func(e *Event) { e.Description = desc }
}

// WithMetadata sets caller metadata.
func WithMetadata(md Payload) EventOption {
	return func(e *Event) { e.Metadata = md }
}

// WithContext attaches request metadata.
func WithContext(rc *RequestContext) EventOption {
	return func(e *Event) { e.Context = rc }
}

// WithCorrelationID links the event to a logical operation.
func WithCorrelationID(id string) EventOption {
	return func(e *Event) { e.CorrelationID = id }
}

// WithChanges records the pre and post state of the resource.
func WithChanges(oldValues, newValues Payload) EventOption {
	return func(e *Event) {
		e.OldValues = oldValues
		e.NewValues = newValues
	}
}

// WithLevel overrides level derivation.
func WithLevel(level Level) EventOption {
	return func(e *Event) { e.Level = level }
}

// WithSuccess sets the outcome. Scoped helpers default to success.
func WithSuccess(success bool) EventOption {
	return func(e *Event) { e.Success = success }
}

func apply(e Event, opts []EventOption) Event {
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// ResourceLogger logs events for one resource kind.
type ResourceLogger struct {
	parent   *Logger
	resource string
}

// ForResource returns a logger bound to a resource kind.
func (l *Logger) ForResource(resource string) ResourceLogger {
	return ResourceLogger{parent: l, resource: resource}
}

func (r ResourceLogger) log(action Action, actorID, resourceID string, opts []EventOption) {
	r.parent.Log(apply(Event{
		Action:     action,
		ActorID:    actorID,
		Resource:   r.resource,
		ResourceID: resourceID,
		Success:    true,
	}, opts))
}

// Create logs a create action.
func (r ResourceLogger) Create(actorID, resourceID string, opts ...EventOption) {
	r.log(ActionCreate, actorID, resourceID, opts)
}

// Update logs an update action. Use WithChanges to record the diff.
func (r ResourceLogger) Update(actorID, resourceID string, opts ...EventOption) {
	r.log(ActionUpdate, actorID, resourceID, opts)
}

// Delete logs a delete action.
func (r ResourceLogger) Delete(actorID, resourceID string, opts ...EventOption) {
	r.log(ActionDelete, actorID, resourceID, opts)
}

// Read logs a read action.
func (r ResourceLogger) Read(actorID, resourceID string, opts ...EventOption) {
	r.log(ActionRead, actorID, resourceID, opts)
}

// ActorLogger logs events performed by one actor.
type ActorLogger struct {
	parent    *Logger
	actorID   string
	actorType ActorType
}

// ForActor returns a logger bound to an actor.
func (l *Logger) ForActor(actorID string, actorType ActorType) ActorLogger {
	return ActorLogger{parent: l, actorID: actorID, actorType: actorType}
}

func (a ActorLogger) log(e Event, opts []EventOption) {
	e.ActorID = a.actorID
	e.ActorType = a.actorType
	a.parent.Log(apply(e, opts))
}

// Login logs a login attempt. A failed attempt resolves to critical.
func (a ActorLogger) Login(success bool, opts ...EventOption) {
	a.log(Event{Action: ActionLogin, Resource: "session", Success: success}, opts)
}

// Logout logs a logout.
func (a ActorLogger) Logout(opts ...EventOption) {
	a.log(Event{Action: ActionLogout, Resource: "session", Success: true}, opts)
}

// AccessDenied logs a refused access to a resource.
func (a ActorLogger) AccessDenied(resource, resourceID string, opts ...EventOption) {
	a.log(Event{
		Action:     ActionAccessDenied,
		Resource:   resource,
		ResourceID: resourceID,
		Success:    false,
	}, opts)
}
