package endpoint

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ariebrainware/hospital-dashboard/bus"
	"github.com/ariebrainware/hospital-dashboard/config"
	"github.com/ariebrainware/hospital-dashboard/model"
	"github.com/ariebrainware/hospital-dashboard/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// bedRecord is a bed joined with the name of the patient occupying it.
type bedRecord struct {
	ID          string
	BedNumber   string
	Ward        string
	Status      model.BedStatus
	PatientID   *string
	AssignedAt  *time.Time
	Notes       *string
	PatientName *string
}

type bedView struct {
	ID          string          `json:"id"`
	BedNumber   string          `json:"bed_number"`
	Ward        string          `json:"ward"`
	Status      model.BedStatus `json:"status"`
	StatusLabel string          `json:"status_label"`
	PatientID   *string         `json:"patient_id"`
	PatientName string          `json:"patient_name"`
	AssignedAt  string          `json:"assigned_at"`
	Notes       string          `json:"notes"`
}

func toBedView(r bedRecord) bedView {
	patient := "-"
	if r.PatientID != nil {
		patient = util.StringOr(r.PatientName, "Unknown patient")
	}
	return bedView{
		ID:          r.ID,
		BedNumber:   r.BedNumber,
		Ward:        r.Ward,
		Status:      r.Status,
		StatusLabel: r.Status.Label(),
		PatientID:   r.PatientID,
		PatientName: patient,
		AssignedAt:  formatTimestamp(r.AssignedAt),
		Notes:       util.StringOr(r.Notes, "-"),
	}
}

// ListBeds godoc
// @Summary      List beds
// @Description  Beds ordered by bed number, with the occupying patient's name
// @Tags         Bed
// @Produce      json
// @Security     BearerAuth
// @Param        ward query string false "Ward label"
// @Param        status query string false "available|occupied"
// @Success      200 {object} util.APIResponse{data=object} "Beds retrieved"
// @Failure      400 {object} util.APIResponse "Invalid filter"
// @Router       /api/beds [get]
func ListBeds(c *gin.Context) {
	status := model.BedStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Invalid bed filter",
			Err: fmt.Errorf("unknown bed status %q", status),
		})
		return
	}
	db, ok := requireDB(c)
	if !ok {
		return
	}

	query := db.Table("beds").
		Select("beds.id, beds.bed_number, beds.ward, beds.status, beds.patient_id, beds.assigned_at, beds.notes, " +
			"patients.full_name AS patient_name").
		Joins("LEFT JOIN patients ON patients.id = beds.patient_id AND patients.deleted_at IS NULL").
		Where("beds.deleted_at IS NULL").
		Order("beds.bed_number ASC")
	if ward := strings.TrimSpace(c.Query("ward")); ward != "" {
		query = query.Where("beds.ward = ?", ward)
	}
	if status != "" {
		query = query.Where("beds.status = ?", status)
	}

	emptyMessage := "No beds found"
	if status == model.BedAvailable {
		emptyMessage = "No available beds"
	}

	var records []bedRecord
	if err := query.Scan(&records).Error; err != nil {
		respondDegraded(c, "Beds", "beds", emptyMessage, err)
		return
	}

	beds := make([]bedView, 0, len(records))
	for _, r := range records {
		beds = append(beds, toBedView(r))
	}
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Beds retrieved",
		Data: listView("beds", beds, len(beds), int64(len(beds)), emptyMessage),
	})
}

func fetchOccupancy(db *gorm.DB) (model.OccupancyReport, []model.Bed, error) {
	var beds []model.Bed
	if err := db.Order("bed_number ASC").Find(&beds).Error; err != nil {
		return model.OccupancyReport{}, nil, err
	}
	return model.ComputeOccupancy(beds, config.LoadConfig().Wards), beds, nil
}

// BedOccupancy godoc
// @Summary      Bed occupancy per ward
// @Description  Occupied and total beds per ward with a rounded percentage, plus hospital-wide totals
// @Tags         Bed
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} util.APIResponse{data=model.OccupancyReport} "Occupancy retrieved"
// @Router       /api/beds/occupancy [get]
func BedOccupancy(c *gin.Context) {
	db, ok := requireDB(c)
	if !ok {
		return
	}

	report, _, err := fetchOccupancy(db)
	if err != nil {
		// Configured wards still render, at 0%.
		report = model.ComputeOccupancy(nil, config.LoadConfig().Wards)
		logReadFailure(c, "Bed occupancy", err)
	}
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "Occupancy retrieved",
		Data: map[string]interface{}{
			"wards":      report.Wards,
			"occupied":   report.Occupied,
			"total":      report.Total,
			"percentage": report.Percentage,
			"degraded":   err != nil,
		},
	})
}

// ExportOccupancy godoc
// @Summary      Download bed occupancy as a spreadsheet
// @Description  The occupancy report and the bed roster as an xlsx workbook
// @Tags         Bed
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security     BearerAuth
// @Success      200 {file} file "Workbook"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /api/beds/occupancy/export [get]
func ExportOccupancy(c *gin.Context) {
	db, ok := requireDB(c)
	if !ok {
		return
	}

	report, beds, err := fetchOccupancy(db)
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to read beds", Err: err})
		return
	}

	var patientIDs []string
	for _, b := range beds {
		if b.PatientID != nil {
			patientIDs = append(patientIDs, *b.PatientID)
		}
	}
	names := make(map[string]string, len(patientIDs))
	if len(patientIDs) > 0 {
		var patients []model.Patient
		if err := db.Select("id", "full_name").Where("id IN ?", patientIDs).Find(&patients).Error; err != nil {
			util.CallServerError(c, util.APIErrorParams{Msg: "Failed to read patients", Err: err})
			return
		}
		for _, p := range patients {
			names[p.ID] = p.FullName
		}
	}

	var buf bytes.Buffer
	if err := util.WriteOccupancyWorkbook(&buf, report, beds, names); err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to build workbook", Err: err})
		return
	}
	// CORSMiddleware presets a JSON content type, which c.Data would keep.
	c.Header("Content-Type", xlsxContentType)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="bed-occupancy-%s.xlsx"`, today()))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

type assignBedRequest struct {
	PatientID string `json:"patient_id" binding:"required"`
	BedID     string `json:"bed_id" binding:"required"`
	Notes     string `json:"notes"`
}

type bedAssignment struct {
	Bed     model.Bed     `json:"bed"`
	Patient model.Patient `json:"patient"`
}

// assignBed occupies the bed and admits the patient as one unit of work.
// The bed update only matches an available bed, so of two concurrent
// assignments to the same bed exactly one wins.
func assignBed(tx *gorm.DB, req assignBedRequest, at time.Time) (bedAssignment, error) {
	var result bedAssignment
	// The patient row lock serialises assignments for one patient so the
	// held-bed count below cannot go stale before the bed update.
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", req.PatientID).
		First(&result.Patient).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return result, errPatientNotFound
		}
		return result, err
	}
	if !result.Patient.Status.BedEligible() {
		return result, fmt.Errorf("%w: status is %s", errPatientNotEligible, result.Patient.Status)
	}
	var held int64
	if err := tx.Model(&model.Bed{}).Where("patient_id = ? AND status = ?", req.PatientID, model.BedOccupied).Count(&held).Error; err != nil {
		return result, err
	}
	if held > 0 {
		return result, errPatientHasBed
	}
	if err := tx.Where("id = ?", req.BedID).First(&result.Bed).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return result, errBedNotFound
		}
		return result, err
	}

	notes := util.NullableTrim(req.Notes)
	res := tx.Model(&model.Bed{}).
		Where("id = ? AND status = ?", req.BedID, model.BedAvailable).
		Updates(map[string]interface{}{
			"status":      model.BedOccupied,
			"patient_id":  req.PatientID,
			"assigned_at": at,
			"notes":       notes,
		})
	if res.Error != nil {
		return result, res.Error
	}
	if res.RowsAffected == 0 {
		return result, errBedUnavailable
	}

	next := result.Patient.Status.AfterBedAssignment()
	if err := tx.Model(&model.Patient{}).Where("id = ?", req.PatientID).Update("status", next).Error; err != nil {
		return result, err
	}

	result.Bed.Status = model.BedOccupied
	result.Bed.PatientID = &req.PatientID
	result.Bed.AssignedAt = &at
	result.Bed.Notes = notes
	result.Patient.Status = next
	return result, nil
}

// AssignBed godoc
// @Summary      Assign a bed to a patient
// @Description  Marks the bed occupied and moves the patient to admitted (critical patients stay critical) in one transaction
// @Tags         Bed
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body assignBedRequest true "Patient and bed"
// @Success      200 {object} util.APIResponse{data=bedAssignment} "Bed assigned"
// @Failure      400 {object} util.APIResponse "Validation error, bed taken or patient not eligible"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /api/beds/assign [post]
func AssignBed(c *gin.Context) {
	const operation = "assign_bed"

	var req assignBedRequest
	if !bindForm(c, operation, &req) {
		return
	}
	db, ok := requireDB(c)
	if !ok {
		return
	}

	var result bedAssignment
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = assignBed(tx, req, now().UTC())
		return err
	})
	if err != nil {
		failMutation(c, operation, "Failed to assign bed", err)
		return
	}

	msg := fmt.Sprintf("%s has been assigned to bed %s in %s", result.Patient.FullName, result.Bed.BedNumber, result.Bed.Ward)
	completeMutation(c, operation, util.ActivityEvent{
		EventType: util.EventBedAssigned,
		Entity:    "bed",
		EntityID:  result.Bed.ID,
		Message:   msg,
		Details:   map[string]interface{}{"patient_id": result.Patient.ID, "bed_number": result.Bed.BedNumber},
	}, bus.TopicBeds, bus.TopicPatients)

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  msg,
		Data: result,
	})
}

// ReleaseBed godoc
// @Summary      Release an occupied bed
// @Description  Marks the bed available and clears its patient, timestamp and notes
// @Tags         Bed
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Bed ID"
// @Success      200 {object} util.APIResponse{data=model.Bed} "Bed released"
// @Failure      400 {object} util.APIResponse "Unknown bed or bed not occupied"
// @Router       /api/beds/{id}/release [post]
func ReleaseBed(c *gin.Context) {
	const operation = "release_bed"

	db, ok := requireDB(c)
	if !ok {
		return
	}

	var bed model.Bed
	var releasedPatient string
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", c.Param("id")).First(&bed).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errBedNotFound
			}
			return err
		}
		if bed.Status != model.BedOccupied {
			return errBedNotOccupied
		}
		releasedPatient = util.StringOr(bed.PatientID, "")

		res := tx.Model(&model.Bed{}).
			Where("id = ? AND status = ?", bed.ID, model.BedOccupied).
			Updates(map[string]interface{}{
				"status":      model.BedAvailable,
				"patient_id":  nil,
				"assigned_at": nil,
				"notes":       nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errBedNotOccupied
		}
		return nil
	})
	if err != nil {
		failMutation(c, operation, "Failed to release bed", err)
		return
	}

	bed.Status = model.BedAvailable
	bed.PatientID = nil
	bed.AssignedAt = nil
	bed.Notes = nil
	completeMutation(c, operation, util.ActivityEvent{
		EventType: util.EventBedReleased,
		Entity:    "bed",
		EntityID:  bed.ID,
		Message:   fmt.Sprintf("Bed %s in %s is available", bed.BedNumber, bed.Ward),
		Details:   map[string]interface{}{"patient_id": releasedPatient},
	}, bus.TopicBeds, bus.TopicPatients)

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Bed released",
		Data: bed,
	})
}
