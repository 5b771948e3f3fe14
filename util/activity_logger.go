package util

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ariebrainware/hospital-dashboard/model"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActivityEventType represents the kinds of dashboard activity worth keeping
type ActivityEventType string

const (
	EventPatientRegistered        ActivityEventType = "PATIENT_REGISTERED"
	EventPatientStatusChanged     ActivityEventType = "PATIENT_STATUS_CHANGED"
	EventAppointmentScheduled     ActivityEventType = "APPOINTMENT_SCHEDULED"
	EventAppointmentStatusChanged ActivityEventType = "APPOINTMENT_STATUS_CHANGED"
	EventDoctorStatusChanged      ActivityEventType = "DOCTOR_STATUS_CHANGED"
	EventBedAssigned              ActivityEventType = "BED_ASSIGNED"
	EventBedReleased              ActivityEventType = "BED_RELEASED"
	EventMutationFailed           ActivityEventType = "MUTATION_FAILED"
	EventUnauthorizedAccess       ActivityEventType = "UNAUTHORIZED_ACCESS"
	EventRateLimitExceeded        ActivityEventType = "RATE_LIMIT_EXCEEDED"
)

// ActivityEvent represents an event to be logged and persisted
type ActivityEvent struct {
	EventType ActivityEventType
	ActorID   string
	IP        string
	Entity    string
	EntityID  string
	Message   string
	Details   map[string]interface{}
}

var (
	activityDB *gorm.DB
	activityMu sync.RWMutex
)

// SetActivityLoggerDB sets the gorm DB used to persist activity events.
// Call this during application startup after DB initialization; nil disables persistence.
func SetActivityLoggerDB(db *gorm.DB) {
	activityMu.Lock()
	defer activityMu.Unlock()
	activityDB = db
}

func activityStore() *gorm.DB {
	activityMu.RLock()
	defer activityMu.RUnlock()
	return activityDB
}

// sanitizeLogValue removes newlines and other characters that could break log parsing
func sanitizeLogValue(value string) string {
	value = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(value)
	if len(value) > 200 {
		value = value[:200] + "..."
	}
	return value
}

// LogActivity logs an activity event and persists it when a DB is configured.
// Persistence is best-effort: a failed insert is logged, never returned.
func LogActivity(event ActivityEvent) {
	log.Info().
		Str("event", string(event.EventType)).
		Str("actor_id", sanitizeLogValue(event.ActorID)).
		Str("ip", sanitizeLogValue(event.IP)).
		Str("entity", event.Entity).
		Str("entity_id", sanitizeLogValue(event.EntityID)).
		Int("details_count", len(event.Details)).
		Msg(sanitizeLogValue(event.Message))

	db := activityStore()
	if db == nil {
		return
	}

	var details datatypes.JSON
	if event.Details != nil {
		if b, err := json.Marshal(event.Details); err == nil {
			details = datatypes.JSON(b)
		}
	}

	entry := model.ActivityLog{
		EventType: string(event.EventType),
		ActorID:   sanitizeLogValue(event.ActorID),
		IP:        sanitizeLogValue(event.IP),
		Entity:    event.Entity,
		EntityID:  sanitizeLogValue(event.EntityID),
		Message:   sanitizeLogValue(event.Message),
		Details:   details,
	}
	if err := db.Create(&entry).Error; err != nil {
		log.Warn().Err(err).Str("event", string(event.EventType)).Msg("failed to persist activity event")
	}
}

// LogUnauthorizedAccess logs a request rejected by the staff token check
func LogUnauthorizedAccess(ip, resource, reason string) {
	LogActivity(ActivityEvent{
		EventType: EventUnauthorizedAccess,
		IP:        ip,
		Message:   fmt.Sprintf("Unauthorized access to %s: %s", resource, reason),
	})
}

// LogRateLimitExceeded logs when rate limit is exceeded
func LogRateLimitExceeded(ip, endpoint string) {
	LogActivity(ActivityEvent{
		EventType: EventRateLimitExceeded,
		IP:        ip,
		Message:   fmt.Sprintf("Rate limit exceeded for endpoint: %s", endpoint),
	})
}
