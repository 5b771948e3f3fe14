package model

// DoctorStatus is the availability shown on the doctor widget.
type DoctorStatus string

const (
	DoctorAvailable DoctorStatus = "available"
	DoctorBusy      DoctorStatus = "busy"
	DoctorOffDuty   DoctorStatus = "off-duty"
)

var doctorStatusLabels = map[DoctorStatus]string{
	DoctorAvailable: "Available",
	DoctorBusy:      "In Session",
	DoctorOffDuty:   "Off Duty",
}

func (s DoctorStatus) Valid() bool {
	_, ok := doctorStatusLabels[s]
	return ok
}

func (s DoctorStatus) Label() string {
	if l, ok := doctorStatusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Doctor represents a member of the medical staff
// @Description Doctor information
type Doctor struct {
	Base
	FullName  string       `json:"full_name" gorm:"column:full_name;size:100;not null;index" example:"Dr. Sarah Wilson"`
	Specialty string       `json:"specialty" gorm:"column:specialty;size:100;not null" example:"Cardiology"`
	Status    DoctorStatus `json:"status" gorm:"column:status;size:16;not null;default:available;index" example:"available"`
}
