package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opslane/access-portal/internal/core/events"
)

const EventTypeAuditEntry = "audit.entry"

// Recorder publishes audit entries onto the event bus. Delivery is
// asynchronous; the persister subscriber writes them to the database.
type Recorder struct {
	bus    *events.EventBus
	logger *slog.Logger
}

func NewRecorder(bus *events.EventBus, logger *slog.Logger) *Recorder {
	return &Recorder{bus: bus, logger: logger}
}

func (r *Recorder) Record(actor, action, targetID string, details map[string]interface{}) {
	if actor == "" {
		actor = "system"
	}

	event := events.BaseEvent{
		ID:        uuid.NewString(),
		Type:      EventTypeAuditEntry,
		Timestamp: time.Now().UTC(),
		Data: map[string]interface{}{
			"actor_email": actor,
			"action":      action,
			"target_id":   targetID,
			"details":     details,
		},
	}

	if err := r.bus.Publish(context.Background(), event); err != nil {
		r.logger.Error("failed to publish audit event", "action", action, "error", err)
	}
}

// Persister subscribes to audit events and appends them to the trail.
type Persister struct {
	repo   Repository
	logger *slog.Logger
}

func NewPersister(repo Repository, logger *slog.Logger) *Persister {
	return &Persister{repo: repo, logger: logger}
}

func (p *Persister) Register(bus *events.EventBus) {
	bus.Subscribe(EventTypeAuditEntry, p.handle)
}

func (p *Persister) handle(ctx context.Context, event events.Event) error {
	data, ok := event.Payload().(map[string]interface{})
	if !ok {
		p.logger.Warn("audit event with unexpected payload", "event_id", event.EventID())
		return nil
	}

	entry := &Entry{
		ID:         event.EventID(),
		ActorEmail: stringField(data, "actor_email"),
		Action:     stringField(data, "action"),
		TargetID:   stringField(data, "target_id"),
		CreatedAt:  event.OccurredAt(),
	}
	if details, ok := data["details"].(map[string]interface{}); ok {
		entry.Details = details
	}

	return p.repo.Create(entry)
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
