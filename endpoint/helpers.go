package endpoint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ariebrainware/hospital-dashboard/bus"
	"github.com/ariebrainware/hospital-dashboard/middleware"
	"github.com/ariebrainware/hospital-dashboard/util"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

func now() time.Time { return util.Now() }

func today() string {
	return now().Format(util.DateLayout)
}

const (
	stateEmpty = "empty"
	stateList  = "list"

	defaultListLimit = 10
	maxListLimit     = 100
)

var (
	errPatientNotFound     = errors.New("patient not found")
	errDoctorNotFound      = errors.New("doctor not found")
	errDoctorUnavailable   = errors.New("doctor is not available")
	errAppointmentNotFound = errors.New("appointment not found")
	errBedNotFound         = errors.New("bed not found")
	errBedUnavailable      = errors.New("bed is no longer available")
	errBedNotOccupied      = errors.New("bed is not occupied")
	errPatientNotEligible  = errors.New("patient is not eligible for a bed")
	errPatientHasBed       = errors.New("patient already occupies a bed")
)

// isStateConflict reports errors caused by the request not matching current
// data, as opposed to the store failing.
func isStateConflict(err error) bool {
	for _, target := range []error{
		errPatientNotFound, errDoctorNotFound, errDoctorUnavailable, errAppointmentNotFound, errBedNotFound,
		errBedUnavailable, errBedNotOccupied, errPatientNotEligible, errPatientHasBed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func parseLimit(c *gin.Context, fallback int) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return fallback
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func parseOffset(c *gin.Context) int {
	offset, err := strconv.Atoi(c.Query("offset"))
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}

// splitList reads a comma separated query value.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// listView shapes rows for a widget: "empty" with a message, or "list".
func listView(key string, rows interface{}, fetched int, total int64, emptyMessage string) map[string]interface{} {
	view := map[string]interface{}{
		"state":         stateList,
		"empty_message": "",
		"degraded":      false,
		"total":         total,
		"total_fetched": fetched,
		key:             rows,
	}
	if fetched == 0 {
		view["state"] = stateEmpty
		view["empty_message"] = emptyMessage
	}
	return view
}

// respondDegraded answers a failed widget read with an empty view. The
// failure is logged, not shown to the user.
func respondDegraded(c *gin.Context, widget, key, emptyMessage string, err error) {
	logReadFailure(c, widget, err)
	view := listView(key, []interface{}{}, 0, 0, emptyMessage)
	view["degraded"] = true
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  fmt.Sprintf("%s unavailable", widget),
		Data: view,
	})
}

func logReadFailure(c *gin.Context, widget string, err error) {
	log.Error().Err(err).Str("widget", widget).Str("path", c.Request.URL.Path).Msg("read failed, serving empty view")
}

func requireDB(c *gin.Context) (*gorm.DB, bool) {
	db := middleware.GetDB(c)
	if db == nil {
		util.CallServerError(c, util.APIErrorParams{
			Msg: "Database connection not available",
			Err: fmt.Errorf("db is nil"),
		})
		return nil, false
	}
	return db, true
}

// bindForm binds and validates a JSON body, answering 400 with the first
// validation message on failure.
func bindForm(c *gin.Context, operation string, form interface{}) bool {
	if err := c.ShouldBindJSON(form); err != nil {
		msg := util.ValidationMessage(err)
		middleware.RecordMutation(operation, "invalid")
		util.CallUserError(c, util.APIErrorParams{
			Msg: msg,
			Err: errors.New(msg),
		})
		return false
	}
	return true
}

func staffID(c *gin.Context) string {
	id, _ := middleware.GetStaffID(c)
	return id
}

// failMutation reports the first error of an aborted form submission.
func failMutation(c *gin.Context, operation, msg string, err error) {
	middleware.RecordMutation(operation, "failed")
	util.LogActivity(util.ActivityEvent{
		EventType: util.EventMutationFailed,
		ActorID:   staffID(c),
		IP:        c.ClientIP(),
		Message:   fmt.Sprintf("%s: %v", operation, err),
		Details:   map[string]interface{}{"operation": operation},
	})
	params := util.APIErrorParams{Msg: msg, Err: err}
	if isStateConflict(err) {
		util.CallUserError(c, params)
		return
	}
	util.CallServerError(c, params)
}

// completeMutation records a committed form submission and tells the
// affected widgets to refresh.
func completeMutation(c *gin.Context, operation string, event util.ActivityEvent, topics ...bus.Topic) {
	middleware.RecordMutation(operation, "success")
	event.ActorID = staffID(c)
	event.IP = c.ClientIP()
	util.LogActivity(event)

	b := middleware.GetBus(c)
	if b == nil {
		return
	}
	// The commit already happened; a failed relay only delays other instances.
	if _, err := b.Publish(c.Request.Context(), event.Message, topics...); err != nil {
		log.Warn().Err(err).Str("operation", operation).Msg("refresh relay failed")
	}
}

// ageOn returns the age in whole years at day, or nil for an unparsable date of birth.
func ageOn(dateOfBirth string, day time.Time) *int {
	dob, err := time.Parse(util.DateLayout, dateOfBirth)
	if err != nil {
		return nil
	}
	age := day.Year() - dob.Year()
	if day.Month() < dob.Month() || (day.Month() == dob.Month() && day.Day() < dob.Day()) {
		age--
	}
	if age < 0 {
		return nil
	}
	return &age
}

func formatTimestamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
