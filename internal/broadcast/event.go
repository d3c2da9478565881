package broadcast

import (
	"github.com/kmoreland/leasepulse/internal/models"
)

// Event type values carried on the wire.
const (
	EventUnitUpdate      = "unit_update"
	EventUnitDeleted     = "unit_deleted"
	EventAnalyticsUpdate = "analytics_update"
)

// Event is the wire shape delivered to every observer: a type tag plus the
// payload. Unit records serialize with status as its string value and all
// timestamps as RFC 3339.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// DeletedPayload is the body of a unit_deleted event.
type DeletedPayload struct {
	ID string `json:"id"`
}

// UnitUpdate builds the event announcing a created or updated unit.
func UnitUpdate(unit models.Unit) Event {
	return Event{Type: EventUnitUpdate, Data: unit}
}

// UnitDeleted builds the event announcing a deleted unit.
func UnitDeleted(id string) Event {
	return Event{Type: EventUnitDeleted, Data: DeletedPayload{ID: id}}
}

// AnalyticsUpdate builds the event carrying refreshed dashboard metrics.
func AnalyticsUpdate(data interface{}) Event {
	return Event{Type: EventAnalyticsUpdate, Data: data}
}
