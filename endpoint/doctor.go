package endpoint

import (
	"errors"
	"fmt"

	"github.com/ariebrainware/hospital-dashboard/bus"
	"github.com/ariebrainware/hospital-dashboard/model"
	"github.com/ariebrainware/hospital-dashboard/util"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type doctorView struct {
	ID                string             `json:"id"`
	FullName          string             `json:"full_name"`
	Initials          string             `json:"initials"`
	Specialty         string             `json:"specialty"`
	Status            model.DoctorStatus `json:"status"`
	StatusLabel       string             `json:"status_label"`
	AppointmentsToday int64              `json:"appointments_today"`
}

type doctorLoad struct {
	DoctorID string
	Total    int64
}

// appointmentsPerDoctor counts today's non-cancelled appointments per doctor.
func appointmentsPerDoctor(db *gorm.DB, day string) (map[string]int64, error) {
	var loads []doctorLoad
	err := db.Model(&model.Appointment{}).
		Select("doctor_id, COUNT(*) AS total").
		Where("appointment_date = ? AND status <> ?", day, model.AppointmentCancelled).
		Group("doctor_id").
		Scan(&loads).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(loads))
	for _, l := range loads {
		out[l.DoctorID] = l.Total
	}
	return out, nil
}

// ListDoctors godoc
// @Summary      Doctor availability
// @Description  Doctors ordered by name with today's appointment count. Filter status=available for booking candidates.
// @Tags         Doctor
// @Produce      json
// @Security     BearerAuth
// @Param        status query string false "available|busy|off-duty"
// @Success      200 {object} util.APIResponse{data=object} "Doctors retrieved"
// @Failure      400 {object} util.APIResponse "Invalid filter"
// @Router       /api/doctors [get]
func ListDoctors(c *gin.Context) {
	status := model.DoctorStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Invalid doctor filter",
			Err: fmt.Errorf("unknown doctor status %q", status),
		})
		return
	}
	db, ok := requireDB(c)
	if !ok {
		return
	}

	query := db.Model(&model.Doctor{}).Order("full_name ASC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var doctors []model.Doctor
	if err := query.Find(&doctors).Error; err != nil {
		respondDegraded(c, "Doctors", "doctors", "No doctors available", err)
		return
	}

	loads, err := appointmentsPerDoctor(db, today())
	if err != nil {
		log.Warn().Err(err).Msg("failed to count today's appointments per doctor")
		loads = map[string]int64{}
	}

	views := make([]doctorView, 0, len(doctors))
	for _, d := range doctors {
		views = append(views, doctorView{
			ID:                d.ID,
			FullName:          d.FullName,
			Initials:          util.Initials(d.FullName),
			Specialty:         d.Specialty,
			Status:            d.Status,
			StatusLabel:       d.Status.Label(),
			AppointmentsToday: loads[d.ID],
		})
	}
	view := listView("doctors", views, len(views), int64(len(views)), "No doctors available")
	view["degraded"] = err != nil
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Doctors retrieved",
		Data: view,
	})
}

type doctorStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=available busy off-duty" example:"busy"`
}

// UpdateDoctorStatus godoc
// @Summary      Change a doctor's availability
// @Tags         Doctor
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Doctor ID"
// @Param        request body doctorStatusRequest true "New status"
// @Success      200 {object} util.APIResponse{data=model.Doctor} "Doctor status updated"
// @Failure      400 {object} util.APIResponse "Validation error or unknown doctor"
// @Router       /api/doctors/{id}/status [patch]
func UpdateDoctorStatus(c *gin.Context) {
	const operation = "update_doctor_status"

	var req doctorStatusRequest
	if !bindForm(c, operation, &req) {
		return
	}
	db, ok := requireDB(c)
	if !ok {
		return
	}

	status := model.DoctorStatus(req.Status)
	var doctor model.Doctor
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", c.Param("id")).First(&doctor).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errDoctorNotFound
			}
			return err
		}
		if err := tx.Model(&doctor).Update("status", status).Error; err != nil {
			return err
		}
		doctor.Status = status
		return nil
	})
	if err != nil {
		failMutation(c, operation, "Failed to update doctor status", err)
		return
	}

	completeMutation(c, operation, util.ActivityEvent{
		EventType: util.EventDoctorStatusChanged,
		Entity:    "doctor",
		EntityID:  doctor.ID,
		Message:   fmt.Sprintf("%s is now %s", doctor.FullName, status.Label()),
	}, bus.TopicDoctors)

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Doctor status updated",
		Data: doctor,
	})
}
