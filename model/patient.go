package model

// PatientStatus is the admission state shown on the patient list.
type PatientStatus string

const (
	PatientAdmitted   PatientStatus = "admitted"
	PatientOutpatient PatientStatus = "outpatient"
	PatientDischarged PatientStatus = "discharged"
	PatientCritical   PatientStatus = "critical"
)

var patientStatusLabels = map[PatientStatus]string{
	PatientAdmitted:   "Admitted",
	PatientOutpatient: "Outpatient",
	PatientDischarged: "Discharged",
	PatientCritical:   "Critical",
}

// Valid reports whether s is one of the known patient statuses.
func (s PatientStatus) Valid() bool {
	_, ok := patientStatusLabels[s]
	return ok
}

// Label returns the display label, or the raw value for unknown statuses.
func (s PatientStatus) Label() string {
	if l, ok := patientStatusLabels[s]; ok {
		return l
	}
	return string(s)
}

// BedEligibleStatuses are the statuses a patient may hold when a bed is assigned.
var BedEligibleStatuses = []PatientStatus{PatientAdmitted, PatientCritical, PatientOutpatient}

// BedEligible reports whether a patient in this status can be given a bed.
func (s PatientStatus) BedEligible() bool {
	for _, e := range BedEligibleStatuses {
		if e == s {
			return true
		}
	}
	return false
}

// AfterBedAssignment is the status a patient moves to once a bed is assigned.
// Critical patients keep their status so they stay visible in the critical count.
func (s PatientStatus) AfterBedAssignment() PatientStatus {
	if s == PatientCritical {
		return PatientCritical
	}
	return PatientAdmitted
}

// Patient represents a registered patient
// @Description Patient information
type Patient struct {
	Base
	PatientCode           string        `json:"patient_code" gorm:"column:patient_code;size:16;uniqueIndex;not null" example:"P00001"`
	FullName              string        `json:"full_name" gorm:"column:full_name;size:100;not null;index" example:"Jane Doe"`
	Email                 *string       `json:"email" gorm:"column:email;size:191" example:"jane@example.com"`
	Phone                 string        `json:"phone" gorm:"column:phone;size:32;not null" example:"+15550000000"`
	DateOfBirth           string        `json:"date_of_birth" gorm:"column:date_of_birth;size:10;not null" example:"1985-04-12"`
	Gender                string        `json:"gender" gorm:"column:gender;size:16;not null" example:"female"`
	Address               *string       `json:"address" gorm:"column:address;size:255"`
	EmergencyContactName  *string       `json:"emergency_contact_name" gorm:"column:emergency_contact_name;size:100"`
	EmergencyContactPhone *string       `json:"emergency_contact_phone" gorm:"column:emergency_contact_phone;size:32"`
	BloodType             *string       `json:"blood_type" gorm:"column:blood_type;size:3" example:"O+"`
	MedicalHistory        *string       `json:"medical_history" gorm:"column:medical_history;type:text"`
	Allergies             *string       `json:"allergies" gorm:"column:allergies;type:text"`
	Status                PatientStatus `json:"status" gorm:"column:status;size:16;not null;default:outpatient;index" example:"outpatient"`
	CreatedBy             *string       `json:"created_by" gorm:"column:created_by;size:64"`
}
