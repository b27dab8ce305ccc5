package drive

import (
	"context"
	"time"
)

// EventKind names an activity worth notifying project members about.
type EventKind string

const (
	EventUploaded        EventKind = "uploaded"
	EventTrashed         EventKind = "trashed"
	EventRestored        EventKind = "restored"
	EventDeleted         EventKind = "deleted"
	EventRolledBack      EventKind = "rolled_back"
	EventVersionsRetired EventKind = "versions_retired"
)

// Event is a fire-and-forget activity record.
type Event struct {
	Kind      EventKind `json:"kind"`
	ProjectID string    `json:"project_id"`
	NodeID    string    `json:"node_id"`
	Name      string    `json:"name"`
	Version   int       `json:"version,omitempty"`
	Actor     string    `json:"actor"`
	At        time.Time `json:"at"`
}

// Notifier delivers activity events to an external sender.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, Event) error { return nil }

// notifyActivity dispatches an event when the project opted in.
func (s *Service) notifyActivity(ctx context.Context, project *Project, event Event) {
	if project == nil || !project.Settings.NotifyOnActivity {
		return
	}
	event.ProjectID = project.ID
	if event.At.IsZero() {
		event.At = s.clock()
	}
	s.goAsync(ctx, "notify_"+string(event.Kind), func(ctx context.Context) error {
		return s.notifier.Notify(ctx, event)
	})
}
