package endpoint

import (
	"strings"

	"github.com/ariebrainware/hospital-dashboard/model"
	"github.com/ariebrainware/hospital-dashboard/util"
	"github.com/gin-gonic/gin"
)

const defaultActivityLimit = 20

// RecentActivity godoc
// @Summary      Recent activity
// @Description  Latest registrations, assignments and status changes, newest first
// @Tags         Activity
// @Produce      json
// @Security     BearerAuth
// @Param        entity query string false "patient|appointment|doctor|bed"
// @Param        limit query int false "Rows to return (default 20, max 100)"
// @Success      200 {object} util.APIResponse{data=object} "Activity retrieved"
// @Router       /api/activity [get]
func RecentActivity(c *gin.Context) {
	db, ok := requireDB(c)
	if !ok {
		return
	}

	query := db.Model(&model.ActivityLog{}).Order("created_at DESC").Order("id DESC").Limit(parseLimit(c, defaultActivityLimit))
	if entity := strings.TrimSpace(c.Query("entity")); entity != "" {
		query = query.Where("entity = ?", entity)
	}

	var entries []model.ActivityLog
	if err := query.Find(&entries).Error; err != nil {
		respondDegraded(c, "Activity", "activity", "No recent activity", err)
		return
	}
	if entries == nil {
		entries = []model.ActivityLog{}
	}
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Activity retrieved",
		Data: listView("activity", entries, len(entries), int64(len(entries)), "No recent activity"),
	})
}
