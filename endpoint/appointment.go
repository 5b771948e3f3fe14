package endpoint

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ariebrainware/hospital-dashboard/bus"
	"github.com/ariebrainware/hospital-dashboard/middleware"
	"github.com/ariebrainware/hospital-dashboard/model"
	"github.com/ariebrainware/hospital-dashboard/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	scopeUpcoming = "upcoming"
	scopeToday    = "today"
	scopeAll      = "all"
)

type appointmentListQuery struct {
	Scope    string
	DoctorID string
	Status   model.AppointmentStatus
	Limit    int
}

func parseAppointmentListQuery(c *gin.Context) (appointmentListQuery, error) {
	q := appointmentListQuery{
		Scope:    strings.ToLower(c.Query("scope")),
		DoctorID: c.Query("doctor_id"),
		Status:   model.AppointmentStatus(c.Query("status")),
		Limit:    parseLimit(c, defaultListLimit),
	}
	switch q.Scope {
	case "":
		q.Scope = scopeUpcoming
	case scopeUpcoming, scopeToday, scopeAll:
	default:
		return q, fmt.Errorf("unknown scope %q", q.Scope)
	}
	if q.Status != "" && !q.Status.Valid() {
		return q, fmt.Errorf("unknown appointment status %q", q.Status)
	}
	return q, nil
}

// appointmentRecord is an appointment joined with its patient and doctor names.
type appointmentRecord struct {
	ID              string
	PatientID       string
	DoctorID        string
	AppointmentDate string
	AppointmentTime string
	Type            model.AppointmentType
	Reason          string
	Notes           *string
	Status          model.AppointmentStatus
	PatientName     *string
	PatientCode     *string
	DoctorName      *string
	DoctorSpecialty *string
}

type appointmentView struct {
	ID          string                  `json:"id"`
	PatientID   string                  `json:"patient_id"`
	PatientName string                  `json:"patient_name"`
	PatientCode string                  `json:"patient_code"`
	DoctorID    string                  `json:"doctor_id"`
	DoctorName  string                  `json:"doctor_name"`
	Specialty   string                  `json:"specialty"`
	Date        string                  `json:"date"`
	Time        string                  `json:"time"`
	Type        model.AppointmentType   `json:"type"`
	Reason      string                  `json:"reason"`
	Notes       string                  `json:"notes"`
	Status      model.AppointmentStatus `json:"status"`
	StatusLabel string                  `json:"status_label"`
}

func toAppointmentView(r appointmentRecord) appointmentView {
	return appointmentView{
		ID:          r.ID,
		PatientID:   r.PatientID,
		PatientName: util.StringOr(r.PatientName, "Unknown patient"),
		PatientCode: util.StringOr(r.PatientCode, "-"),
		DoctorID:    r.DoctorID,
		DoctorName:  util.StringOr(r.DoctorName, "Unassigned"),
		Specialty:   util.StringOr(r.DoctorSpecialty, "-"),
		Date:        r.AppointmentDate,
		Time:        r.AppointmentTime,
		Type:        r.Type,
		Reason:      r.Reason,
		Notes:       util.StringOr(r.Notes, "-"),
		Status:      r.Status,
		StatusLabel: r.Status.Label(),
	}
}

func filterAppointments(query *gorm.DB, q appointmentListQuery, day string) *gorm.DB {
	query = query.Where("appointments.deleted_at IS NULL")
	switch q.Scope {
	case scopeUpcoming:
		query = query.Where("appointments.appointment_date >= ?", day)
	case scopeToday:
		query = query.Where("appointments.appointment_date = ?", day)
	}
	if q.DoctorID != "" {
		query = query.Where("appointments.doctor_id = ?", q.DoctorID)
	}
	if q.Status != "" {
		query = query.Where("appointments.status = ?", q.Status)
	}
	return query
}

func fetchAppointments(db *gorm.DB, q appointmentListQuery, day string) ([]appointmentRecord, int64, error) {
	var total int64
	if err := filterAppointments(db.Table("appointments"), q, day).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []appointmentRecord
	err := filterAppointments(db.Table("appointments"), q, day).
		Select("appointments.id, appointments.patient_id, appointments.doctor_id, appointments.appointment_date, " +
			"appointments.appointment_time, appointments.type, appointments.reason, appointments.notes, appointments.status, " +
			"patients.full_name AS patient_name, patients.patient_code AS patient_code, " +
			"doctors.full_name AS doctor_name, doctors.specialty AS doctor_specialty").
		Joins("LEFT JOIN patients ON patients.id = appointments.patient_id AND patients.deleted_at IS NULL").
		Joins("LEFT JOIN doctors ON doctors.id = appointments.doctor_id AND doctors.deleted_at IS NULL").
		Order("appointments.appointment_date ASC").
		Order("appointments.appointment_time ASC").
		Limit(q.Limit).
		Scan(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListAppointments godoc
// @Summary      Appointment schedule
// @Description  Appointments ordered by date then time, ascending. scope=upcoming (default) keeps today and later.
// @Tags         Appointment
// @Produce      json
// @Security     BearerAuth
// @Param        scope query string false "upcoming|today|all"
// @Param        doctor_id query string false "Only this doctor's appointments"
// @Param        status query string false "scheduled|in-progress|completed|cancelled"
// @Param        limit query int false "Rows to return (default 10, max 100)"
// @Success      200 {object} util.APIResponse{data=object} "Appointments retrieved"
// @Failure      400 {object} util.APIResponse "Invalid filter"
// @Router       /api/appointments [get]
func ListAppointments(c *gin.Context) {
	q, err := parseAppointmentListQuery(c)
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid appointment filter", Err: err})
		return
	}
	db, ok := requireDB(c)
	if !ok {
		return
	}

	emptyMessage := "No upcoming appointments"
	if q.Scope == scopeToday {
		emptyMessage = "No appointments today"
	} else if q.Scope == scopeAll {
		emptyMessage = "No appointments found"
	}

	records, total, err := fetchAppointments(db, q, today())
	if err != nil {
		respondDegraded(c, "Appointments", "appointments", emptyMessage, err)
		return
	}

	appointments := make([]appointmentView, 0, len(records))
	for _, r := range records {
		appointments = append(appointments, toAppointmentView(r))
	}
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Appointments retrieved",
		Data: listView("appointments", appointments, len(appointments), total, emptyMessage),
	})
}

type scheduleAppointmentRequest struct {
	PatientID       string `json:"patient_id" binding:"required"`
	DoctorID        string `json:"doctor_id" binding:"required"`
	AppointmentDate string `json:"appointment_date" binding:"required,datetime=2006-01-02,notpast" example:"2026-10-18"`
	AppointmentTime string `json:"appointment_time" binding:"required,datetime=15:04" example:"09:30"`
	Type            string `json:"type" binding:"omitempty,oneof=in-person video phone" example:"in-person"`
	Reason          string `json:"reason" binding:"required" example:"Annual Checkup"`
	Notes           string `json:"notes"`
}

func buildAppointmentModel(req scheduleAppointmentRequest, createdBy *string) model.Appointment {
	apptType := model.AppointmentType(req.Type)
	if apptType == "" {
		apptType = model.AppointmentInPerson
	}
	return model.Appointment{
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		AppointmentDate: req.AppointmentDate,
		AppointmentTime: req.AppointmentTime,
		Type:            apptType,
		Reason:          strings.TrimSpace(req.Reason),
		Notes:           util.NullableTrim(req.Notes),
		Status:          model.AppointmentScheduled,
		CreatedBy:       createdBy,
	}
}

func ensureExists(tx *gorm.DB, m interface{}, id string, notFound error) error {
	var n int64
	if err := tx.Model(m).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// ensureBookable accepts only doctors currently marked available.
func ensureBookable(tx *gorm.DB, doctorID string) error {
	var doctor model.Doctor
	err := tx.Select("id", "status").Where("id = ?", doctorID).First(&doctor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errDoctorNotFound
	}
	if err != nil {
		return err
	}
	if doctor.Status != model.DoctorAvailable {
		return fmt.Errorf("%w: status is %s", errDoctorUnavailable, doctor.Status)
	}
	return nil
}

// ScheduleAppointment godoc
// @Summary      Schedule an appointment
// @Description  Validates the booking form and inserts the appointment as scheduled
// @Tags         Appointment
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body scheduleAppointmentRequest true "Appointment details"
// @Success      201 {object} util.APIResponse{data=model.Appointment} "Appointment scheduled"
// @Failure      400 {object} util.APIResponse "Validation error, unknown patient/doctor or doctor not available"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /api/appointments [post]
func ScheduleAppointment(c *gin.Context) {
	const operation = "schedule_appointment"

	var req scheduleAppointmentRequest
	if !bindForm(c, operation, &req) {
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		middleware.RecordMutation(operation, "invalid")
		util.CallUserError(c, util.APIErrorParams{Msg: "reason is required", Err: errors.New("reason is required")})
		return
	}
	db, ok := requireDB(c)
	if !ok {
		return
	}

	appointment := buildAppointmentModel(req, util.NullableTrim(staffID(c)))
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := ensureExists(tx, &model.Patient{}, req.PatientID, errPatientNotFound); err != nil {
			return err
		}
		if err := ensureBookable(tx, req.DoctorID); err != nil {
			return err
		}
		return tx.Create(&appointment).Error
	})
	if err != nil {
		failMutation(c, operation, "Failed to schedule appointment", err)
		return
	}

	completeMutation(c, operation, util.ActivityEvent{
		EventType: util.EventAppointmentScheduled,
		Entity:    "appointment",
		EntityID:  appointment.ID,
		Message:   "The appointment has been successfully scheduled.",
		Details: map[string]interface{}{
			"patient_id": appointment.PatientID,
			"doctor_id":  appointment.DoctorID,
			"date":       appointment.AppointmentDate,
			"time":       appointment.AppointmentTime,
		},
	}, bus.TopicAppointments, bus.TopicDoctors)

	util.CallCreated(c, util.APISuccessParams{
		Msg:  "Appointment scheduled",
		Data: appointment,
	})
}

type appointmentStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=scheduled in-progress completed cancelled" example:"completed"`
}

// UpdateAppointmentStatus godoc
// @Summary      Change an appointment's status
// @Tags         Appointment
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Appointment ID"
// @Param        request body appointmentStatusRequest true "New status"
// @Success      200 {object} util.APIResponse{data=model.Appointment} "Appointment status updated"
// @Failure      400 {object} util.APIResponse "Validation error or unknown appointment"
// @Router       /api/appointments/{id}/status [patch]
func UpdateAppointmentStatus(c *gin.Context) {
	const operation = "update_appointment_status"

	var req appointmentStatusRequest
	if !bindForm(c, operation, &req) {
		return
	}
	db, ok := requireDB(c)
	if !ok {
		return
	}

	status := model.AppointmentStatus(req.Status)
	var appointment model.Appointment
	var previous model.AppointmentStatus
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", c.Param("id")).First(&appointment).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errAppointmentNotFound
			}
			return err
		}
		previous = appointment.Status
		if err := tx.Model(&appointment).Update("status", status).Error; err != nil {
			return err
		}
		appointment.Status = status
		return nil
	})
	if err != nil {
		failMutation(c, operation, "Failed to update appointment status", err)
		return
	}

	completeMutation(c, operation, util.ActivityEvent{
		EventType: util.EventAppointmentStatusChanged,
		Entity:    "appointment",
		EntityID:  appointment.ID,
		Message:   fmt.Sprintf("Appointment on %s %s is now %s", appointment.AppointmentDate, appointment.AppointmentTime, status.Label()),
		Details:   map[string]interface{}{"from": previous, "to": status},
	}, bus.TopicAppointments, bus.TopicDoctors)

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Appointment status updated",
		Data: appointment,
	})
}
