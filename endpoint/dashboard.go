package endpoint

import (
	"fmt"

	"github.com/ariebrainware/hospital-dashboard/bus"
	"github.com/ariebrainware/hospital-dashboard/middleware"
	"github.com/ariebrainware/hospital-dashboard/model"
	"github.com/ariebrainware/hospital-dashboard/util"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// statsTopics are the topics whose mutations change the dashboard counts.
var statsTopics = []bus.Topic{bus.TopicPatients, bus.TopicAppointments, bus.TopicBeds}

// DashboardStatsView is the payload of the summary cards.
type DashboardStatsView struct {
	TotalPatients      int64                `json:"total_patients"`
	TodaysAppointments int64                `json:"todays_appointments"`
	AvailableBeds      int64                `json:"available_beds"`
	CriticalCases      int64                `json:"critical_cases"`
	CriticalLabel      string               `json:"critical_label"`
	Date               string               `json:"date"`
	Versions           map[bus.Topic]uint64 `json:"versions"`
	Degraded           bool                 `json:"degraded"`
}

func criticalLabel(n int64) string {
	if n == 0 {
		return "All stable"
	}
	return "Require attention"
}

func statsCacheKey(day string, versions map[bus.Topic]uint64) string {
	return fmt.Sprintf("stats:%s:%d:%d:%d", day,
		versions[bus.TopicPatients], versions[bus.TopicAppointments], versions[bus.TopicBeds])
}

// computeStats runs the four independent count queries. A failing count
// reads as 0 and marks the result degraded.
func computeStats(db *gorm.DB, day string) DashboardStatsView {
	stats := DashboardStatsView{Date: day}
	count := func(name string, query *gorm.DB, dest *int64) {
		if err := query.Count(dest).Error; err != nil {
			log.Error().Err(err).Str("count", name).Msg("dashboard count failed")
			*dest = 0
			stats.Degraded = true
		}
	}
	count("total_patients", db.Model(&model.Patient{}), &stats.TotalPatients)
	count("todays_appointments", db.Model(&model.Appointment{}).Where("appointment_date = ?", day), &stats.TodaysAppointments)
	count("available_beds", db.Model(&model.Bed{}).Where("status = ?", model.BedAvailable), &stats.AvailableBeds)
	count("critical_cases", db.Model(&model.Patient{}).Where("status = ?", model.PatientCritical), &stats.CriticalCases)
	stats.CriticalLabel = criticalLabel(stats.CriticalCases)
	return stats
}

// DashboardStats godoc
// @Summary      Dashboard summary counts
// @Description  Total patients, today's appointments, available beds and critical cases. Cached until a related mutation.
// @Tags         Dashboard
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} util.APIResponse{data=DashboardStatsView} "Stats retrieved"
// @Router       /api/dashboard/stats [get]
func DashboardStats(c *gin.Context) {
	db, ok := requireDB(c)
	if !ok {
		return
	}

	day := today()
	versions := map[bus.Topic]uint64{}
	if b := middleware.GetBus(c); b != nil {
		versions = b.Versions(statsTopics...)
	}
	key := statsCacheKey(day, versions)

	if cached, found := util.ViewCacheGet(key); found {
		if stats, ok := cached.(DashboardStatsView); ok {
			util.CallSuccessOK(c, util.APISuccessParams{Msg: "Stats retrieved", Data: stats})
			return
		}
	}

	stats := computeStats(db, day)
	stats.Versions = versions
	if !stats.Degraded {
		util.ViewCacheSet(key, stats)
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Stats retrieved", Data: stats})
}
