package model

// AppointmentType is how the consultation takes place.
type AppointmentType string

const (
	AppointmentInPerson AppointmentType = "in-person"
	AppointmentVideo    AppointmentType = "video"
	AppointmentPhone    AppointmentType = "phone"
)

func (t AppointmentType) Valid() bool {
	switch t {
	case AppointmentInPerson, AppointmentVideo, AppointmentPhone:
		return true
	}
	return false
}

// AppointmentStatus tracks an appointment through the day.
type AppointmentStatus string

const (
	AppointmentScheduled  AppointmentStatus = "scheduled"
	AppointmentInProgress AppointmentStatus = "in-progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentCancelled  AppointmentStatus = "cancelled"
)

var appointmentStatusLabels = map[AppointmentStatus]string{
	AppointmentScheduled:  "Upcoming",
	AppointmentInProgress: "In Progress",
	AppointmentCompleted:  "Completed",
	AppointmentCancelled:  "Cancelled",
}

func (s AppointmentStatus) Valid() bool {
	_, ok := appointmentStatusLabels[s]
	return ok
}

func (s AppointmentStatus) Label() string {
	if l, ok := appointmentStatusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Appointment represents a booked consultation
// @Description Appointment information
type Appointment struct {
	Base
	PatientID       string            `json:"patient_id" gorm:"column:patient_id;size:36;not null;index"`
	DoctorID        string            `json:"doctor_id" gorm:"column:doctor_id;size:36;not null;index"`
	AppointmentDate string            `json:"appointment_date" gorm:"column:appointment_date;size:10;not null;index" example:"2026-10-18"`
	AppointmentTime string            `json:"appointment_time" gorm:"column:appointment_time;size:5;not null" example:"09:30"`
	Type            AppointmentType   `json:"type" gorm:"column:type;size:16;not null;default:in-person" example:"in-person"`
	Reason          string            `json:"reason" gorm:"column:reason;size:255;not null" example:"Annual Checkup"`
	Notes           *string           `json:"notes" gorm:"column:notes;type:text"`
	Status          AppointmentStatus `json:"status" gorm:"column:status;size:16;not null;default:scheduled;index" example:"scheduled"`
	CreatedBy       *string           `json:"created_by" gorm:"column:created_by;size:64"`
}
