package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActivityLog represents a persisted dashboard activity event
type ActivityLog struct {
	gorm.Model
	EventType string         `json:"event_type" gorm:"column:event_type;type:varchar(64);index"`
	ActorID   string         `json:"actor_id" gorm:"column:actor_id;type:varchar(64);index"`
	IP        string         `json:"ip" gorm:"column:ip;type:varchar(45)"`
	Entity    string         `json:"entity" gorm:"column:entity;type:varchar(32);index"`
	EntityID  string         `json:"entity_id" gorm:"column:entity_id;type:varchar(36)"`
	Message   string         `json:"message" gorm:"column:message;type:text"`
	Details   datatypes.JSON `json:"details" gorm:"column:details;type:json"`
}
