package endpoint

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariebrainware/hospital-dashboard/bus"
	"github.com/ariebrainware/hospital-dashboard/model"
	"github.com/ariebrainware/hospital-dashboard/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const patientCodePrefix = "P"

type patientListQuery struct {
	Limit    int
	Offset   int
	Keyword  string
	Statuses []model.PatientStatus
	SortBy   string
	SortDir  string
}

func parsePatientListQuery(c *gin.Context) (patientListQuery, error) {
	q := patientListQuery{
		Limit:   parseLimit(c, defaultListLimit),
		Offset:  parseOffset(c),
		Keyword: strings.TrimSpace(c.Query("keyword")),
		SortBy:  c.Query("sort"),                      // supported values: full_name, patient_code
		SortDir: strings.ToLower(c.Query("sort_dir")), // supported values: asc, desc
	}
	for _, s := range splitList(c.Query("status")) {
		status := model.PatientStatus(s)
		if !status.Valid() {
			return q, fmt.Errorf("unknown patient status %q", s)
		}
		q.Statuses = append(q.Statuses, status)
	}
	return q, nil
}

// patientRecord is a patient row joined with the bed it currently occupies.
type patientRecord struct {
	ID          string
	PatientCode string
	FullName    string
	Email       *string
	Phone       string
	DateOfBirth string
	Gender      string
	BloodType   *string
	Status      model.PatientStatus
	CreatedAt   time.Time
	BedID       *string
	BedNumber   *string
	Ward        *string
}

type patientView struct {
	ID           string              `json:"id"`
	PatientCode  string              `json:"patient_code"`
	FullName     string              `json:"full_name"`
	Initials     string              `json:"initials"`
	Age          *int                `json:"age"`
	Gender       string              `json:"gender"`
	Phone        string              `json:"phone"`
	Email        string              `json:"email"`
	BloodType    string              `json:"blood_type"`
	Status       model.PatientStatus `json:"status"`
	StatusLabel  string              `json:"status_label"`
	BedID        *string             `json:"bed_id"`
	Bed          string              `json:"bed"`
	Ward         string              `json:"ward"`
	RegisteredAt string              `json:"registered_at"`
}

func toPatientView(r patientRecord, day time.Time) patientView {
	return patientView{
		ID:           r.ID,
		PatientCode:  r.PatientCode,
		FullName:     r.FullName,
		Initials:     util.Initials(r.FullName),
		Age:          ageOn(r.DateOfBirth, day),
		Gender:       r.Gender,
		Phone:        r.Phone,
		Email:        util.StringOr(r.Email, "-"),
		BloodType:    util.StringOr(r.BloodType, "-"),
		Status:       r.Status,
		StatusLabel:  r.Status.Label(),
		BedID:        r.BedID,
		Bed:          util.StringOr(r.BedNumber, "Not assigned"),
		Ward:         util.StringOr(r.Ward, "-"),
		RegisteredAt: r.CreatedAt.Format(util.DateLayout),
	}
}

// patientsWithBeds selects patients with their occupied bed, if any.
func patientsWithBeds(db *gorm.DB) *gorm.DB {
	return db.Table("patients").
		Select("patients.id, patients.patient_code, patients.full_name, patients.email, patients.phone, " +
			"patients.date_of_birth, patients.gender, patients.blood_type, patients.status, patients.created_at, " +
			"beds.id AS bed_id, beds.bed_number, beds.ward").
		Joins("LEFT JOIN beds ON beds.patient_id = patients.id AND beds.status = ? AND beds.deleted_at IS NULL", model.BedOccupied).
		Where("patients.deleted_at IS NULL")
}

func filterPatients(query *gorm.DB, q patientListQuery) *gorm.DB {
	if len(q.Statuses) > 0 {
		query = query.Where("patients.status IN ?", q.Statuses)
	}
	if q.Keyword != "" {
		kw := "%" + q.Keyword + "%"
		query = query.Where("(patients.full_name LIKE ? OR patients.patient_code LIKE ?)", kw, kw)
	}
	return query
}

func fetchPatients(db *gorm.DB, q patientListQuery) ([]patientRecord, int64, error) {
	var total int64
	if err := filterPatients(db.Table("patients").Where("patients.deleted_at IS NULL"), q).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Determine order direction safely (only allow asc/desc)
	orderDir := "ASC"
	if q.SortDir == "desc" {
		orderDir = "DESC"
	}
	query := filterPatients(patientsWithBeds(db), q)
	switch q.SortBy {
	case "full_name":
		query = query.Order(fmt.Sprintf("patients.full_name %s", orderDir))
	case "patient_code":
		query = query.Order(fmt.Sprintf("patients.patient_code %s", orderDir))
	default:
		query = query.Order("patients.created_at DESC")
	}

	var records []patientRecord
	if err := query.Limit(q.Limit).Offset(q.Offset).Scan(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListPatients godoc
// @Summary      List patients
// @Description  Patient list widget rows, newest registrations first
// @Tags         Patient
// @Produce      json
// @Security     BearerAuth
// @Param        status query string false "Comma separated statuses (admitted,outpatient,discharged,critical)"
// @Param        keyword query string false "Search in name or patient code"
// @Param        limit query int false "Rows to return (default 10, max 100)"
// @Param        offset query int false "Offset for pagination"
// @Param        sort query string false "Optional sort field: full_name|patient_code"
// @Param        sort_dir query string false "Optional sort direction: asc|desc"
// @Success      200 {object} util.APIResponse{data=object} "Patients retrieved"
// @Failure      400 {object} util.APIResponse "Invalid filter"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Router       /api/patients [get]
func ListPatients(c *gin.Context) {
	q, err := parsePatientListQuery(c)
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid patient filter", Err: err})
		return
	}
	db, ok := requireDB(c)
	if !ok {
		return
	}

	records, total, err := fetchPatients(db, q)
	if err != nil {
		respondDegraded(c, "Patients", "patients", "No patients found", err)
		return
	}

	day := now()
	patients := make([]patientView, 0, len(records))
	for _, r := range records {
		patients = append(patients, toPatientView(r, day))
	}
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Patients retrieved",
		Data: listView("patients", patients, len(patients), total, "No patients found"),
	})
}

type bedCandidateView struct {
	ID          string              `json:"id"`
	PatientCode string              `json:"patient_code"`
	FullName    string              `json:"full_name"`
	Status      model.PatientStatus `json:"status"`
	StatusLabel string              `json:"status_label"`
}

// ListBedEligiblePatients godoc
// @Summary      Patients who can be given a bed
// @Description  Admitted, critical and outpatient patients not currently occupying a bed, ordered by name
// @Tags         Patient
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} util.APIResponse{data=object} "Patients retrieved"
// @Router       /api/patients/bed-eligible [get]
func ListBedEligiblePatients(c *gin.Context) {
	db, ok := requireDB(c)
	if !ok {
		return
	}

	var records []patientRecord
	err := patientsWithBeds(db).
		Where("patients.status IN ?", model.BedEligibleStatuses).
		Where("beds.id IS NULL").
		Order("patients.full_name ASC").
		Scan(&records).Error
	if err != nil {
		respondDegraded(c, "Bed-eligible patients", "patients", "No admitted patients", err)
		return
	}

	patients := make([]bedCandidateView, 0, len(records))
	for _, r := range records {
		patients = append(patients, bedCandidateView{
			ID:          r.ID,
			PatientCode: r.PatientCode,
			FullName:    r.FullName,
			Status:      r.Status,
			StatusLabel: r.Status.Label(),
		})
	}
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Patients retrieved",
		Data: listView("patients", patients, len(patients), int64(len(patients)), "No admitted patients"),
	})
}

// GetPatient godoc
// @Summary      Get a patient
// @Description  Full patient record with the bed it occupies, if any
// @Tags         Patient
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Patient ID"
// @Success      200 {object} util.APIResponse{data=object} "Patient retrieved"
// @Failure      404 {object} util.APIResponse "Patient not found"
// @Router       /api/patients/{id} [get]
func GetPatient(c *gin.Context) {
	db, ok := requireDB(c)
	if !ok {
		return
	}

	var patient model.Patient
	if err := db.Where("id = ?", c.Param("id")).First(&patient).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.CallErrorNotFound(c, util.APIErrorParams{Msg: "Patient not found", Err: errPatientNotFound})
			return
		}
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve patient", Err: err})
		return
	}

	var bed *model.Bed
	var occupied model.Bed
	err := db.Where("patient_id = ? AND status = ?", patient.ID, model.BedOccupied).First(&occupied).Error
	switch {
	case err == nil:
		bed = &occupied
	case !errors.Is(err, gorm.ErrRecordNotFound):
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve patient bed", Err: err})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "Patient retrieved",
		Data: map[string]interface{}{
			"patient":      patient,
			"status_label": patient.Status.Label(),
			"initials":     util.Initials(patient.FullName),
			"age":          ageOn(patient.DateOfBirth, now()),
			"bed":          bed,
		},
	})
}

type registerPatientRequest struct {
	FullName              string `json:"full_name" binding:"required,fullname" example:"Jane Doe"`
	Email                 string `json:"email" binding:"omitempty,email" example:"jane@example.com"`
	Phone                 string `json:"phone" binding:"required,min=10" example:"5550101234"`
	DateOfBirth           string `json:"date_of_birth" binding:"required,datetime=2006-01-02,notfuture" example:"1985-04-12"`
	Gender                string `json:"gender" binding:"required,oneof=male female other" example:"female"`
	Address               string `json:"address"`
	EmergencyContactName  string `json:"emergency_contact_name"`
	EmergencyContactPhone string `json:"emergency_contact_phone"`
	BloodType             string `json:"blood_type" binding:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-" example:"O+"`
	MedicalHistory        string `json:"medical_history"`
	Allergies             string `json:"allergies"`
}

func buildPatientModel(req registerPatientRequest, patientCode string, createdBy *string) model.Patient {
	return model.Patient{
		PatientCode:           patientCode,
		FullName:              util.NormalizeName(req.FullName),
		Email:                 util.NullableTrim(req.Email),
		Phone:                 strings.TrimSpace(req.Phone),
		DateOfBirth:           req.DateOfBirth,
		Gender:                req.Gender,
		Address:               util.NullableTrim(req.Address),
		EmergencyContactName:  util.NullableTrim(req.EmergencyContactName),
		EmergencyContactPhone: util.NullableTrim(req.EmergencyContactPhone),
		BloodType:             util.NullableTrim(req.BloodType),
		MedicalHistory:        util.NullableTrim(req.MedicalHistory),
		Allergies:             util.NullableTrim(req.Allergies),
		Status:                model.PatientOutpatient,
		CreatedBy:             createdBy,
	}
}

// nextPatientCode hands out the next code from the store-held sequence. The
// increment is a single UPDATE, so concurrent registrations queue on the row
// lock instead of reading the same count. A missing sequence row is seeded
// from the number of patients ever registered.
func nextPatientCode(tx *gorm.DB) (string, error) {
	res := tx.Model(&model.PatientCode{}).
		Where("prefix = ?", patientCodePrefix).
		UpdateColumn("number", gorm.Expr("number + ?", 1))
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		var existing int64
		if err := tx.Unscoped().Model(&model.Patient{}).Count(&existing).Error; err != nil {
			return "", err
		}
		if err := tx.Create(&model.PatientCode{Prefix: patientCodePrefix, Number: int(existing) + 1}).Error; err != nil {
			return "", err
		}
	}

	var seq model.PatientCode
	if err := tx.Where("prefix = ?", patientCodePrefix).First(&seq).Error; err != nil {
		return "", err
	}
	code := util.FormatPatientCode(patientCodePrefix, seq.Number)
	if err := tx.Model(&seq).UpdateColumn("last_code", code).Error; err != nil {
		return "", err
	}
	return code, nil
}

// RegisterPatient godoc
// @Summary      Register a new patient
// @Description  Validates the registration form, assigns the next patient code and inserts the patient as outpatient
// @Tags         Patient
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body registerPatientRequest true "Patient information"
// @Success      201 {object} util.APIResponse{data=model.Patient} "Patient registered"
// @Failure      400 {object} util.APIResponse "Validation error"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /api/patients [post]
func RegisterPatient(c *gin.Context) {
	const operation = "register_patient"

	var req registerPatientRequest
	if !bindForm(c, operation, &req) {
		return
	}
	db, ok := requireDB(c)
	if !ok {
		return
	}

	var patient model.Patient
	err := db.Transaction(func(tx *gorm.DB) error {
		code, err := nextPatientCode(tx)
		if err != nil {
			return err
		}
		patient = buildPatientModel(req, code, util.NullableTrim(staffID(c)))
		return tx.Create(&patient).Error
	})
	if err != nil {
		failMutation(c, operation, "Failed to register patient", err)
		return
	}

	msg := fmt.Sprintf("%s has been registered with ID %s", patient.FullName, patient.PatientCode)
	completeMutation(c, operation, util.ActivityEvent{
		EventType: util.EventPatientRegistered,
		Entity:    "patient",
		EntityID:  patient.ID,
		Message:   msg,
		Details:   map[string]interface{}{"patient_code": patient.PatientCode},
	}, bus.TopicPatients)

	util.CallCreated(c, util.APISuccessParams{
		Msg:  msg,
		Data: patient,
	})
}

type patientStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=admitted outpatient discharged critical" example:"admitted"`
}

// UpdatePatientStatus godoc
// @Summary      Change a patient's status
// @Tags         Patient
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Patient ID"
// @Param        request body patientStatusRequest true "New status"
// @Success      200 {object} util.APIResponse{data=model.Patient} "Patient status updated"
// @Failure      400 {object} util.APIResponse "Validation error, unknown patient or discharge while holding a bed"
// @Router       /api/patients/{id}/status [patch]
func UpdatePatientStatus(c *gin.Context) {
	const operation = "update_patient_status"

	var req patientStatusRequest
	if !bindForm(c, operation, &req) {
		return
	}
	db, ok := requireDB(c)
	if !ok {
		return
	}

	id := c.Param("id")
	status := model.PatientStatus(req.Status)
	var patient model.Patient
	var previous model.PatientStatus
	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&patient).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errPatientNotFound
			}
			return err
		}
		previous = patient.Status
		if !status.BedEligible() {
			var held int64
			if err := tx.Model(&model.Bed{}).Where("patient_id = ? AND status = ?", id, model.BedOccupied).Count(&held).Error; err != nil {
				return err
			}
			if held > 0 {
				return fmt.Errorf("%w: release the bed before marking the patient %s", errPatientHasBed, status)
			}
		}
		if err := tx.Model(&patient).Update("status", status).Error; err != nil {
			return err
		}
		patient.Status = status
		return nil
	})
	if err != nil {
		failMutation(c, operation, "Failed to update patient status", err)
		return
	}

	completeMutation(c, operation, util.ActivityEvent{
		EventType: util.EventPatientStatusChanged,
		Entity:    "patient",
		EntityID:  patient.ID,
		Message:   fmt.Sprintf("%s is now %s", patient.FullName, status.Label()),
		Details:   map[string]interface{}{"from": previous, "to": status},
	}, bus.TopicPatients)

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Patient status updated",
		Data: patient,
	})
}
