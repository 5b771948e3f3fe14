package model

import "time"

// PatientCode is the store-held sequence behind human readable patient codes.
// One row per prefix; Number is the last value handed out.
type PatientCode struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Prefix    string    `json:"prefix" gorm:"size:4;uniqueIndex;not null"`
	Number    int       `json:"number" gorm:"not null;default:0"`
	LastCode  string    `json:"last_code" gorm:"size:16"`
	UpdatedAt time.Time `json:"updated_at"`
}
