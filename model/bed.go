package model

import "time"

// BedStatus is whether a bed can take a patient.
type BedStatus string

const (
	BedAvailable BedStatus = "available"
	BedOccupied  BedStatus = "occupied"
)

func (s BedStatus) Valid() bool {
	return s == BedAvailable || s == BedOccupied
}

func (s BedStatus) Label() string {
	switch s {
	case BedAvailable:
		return "Available"
	case BedOccupied:
		return "Occupied"
	}
	return string(s)
}

// Bed represents a hospital bed in a ward
// @Description Bed information
type Bed struct {
	Base
	BedNumber  string     `json:"bed_number" gorm:"column:bed_number;size:32;uniqueIndex;not null" example:"ICU-3"`
	Ward       string     `json:"ward" gorm:"column:ward;size:64;not null;index" example:"ICU"`
	Status     BedStatus  `json:"status" gorm:"column:status;size:16;not null;default:available;index" example:"available"`
	PatientID  *string    `json:"patient_id" gorm:"column:patient_id;size:36;uniqueIndex:uidx_beds_patient"`
	AssignedAt *time.Time `json:"assigned_at" gorm:"column:assigned_at"`
	Notes      *string    `json:"notes" gorm:"column:notes;type:text"`
}
