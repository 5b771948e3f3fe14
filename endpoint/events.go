package endpoint

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ariebrainware/hospital-dashboard/bus"
	"github.com/ariebrainware/hospital-dashboard/config"
	"github.com/ariebrainware/hospital-dashboard/middleware"
	"github.com/ariebrainware/hospital-dashboard/util"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const defaultHeartbeat = 30 * time.Second

func heartbeatInterval() time.Duration {
	if d := config.LoadConfig().SSEHeartbeat; d > 0 {
		return d
	}
	return defaultHeartbeat
}

// StreamEvents godoc
// @Summary      Refresh events
// @Description  Server-Sent Events stream. "connected" carries current versions, "refresh" is sent after each mutation on a subscribed topic, "heartbeat" keeps idle connections open.
// @Tags         Events
// @Produce      text/event-stream
// @Security     BearerAuth
// @Param        topics query string false "Comma separated topics (patients,doctors,appointments,beds); all when empty"
// @Success      200 {string} string "event stream"
// @Failure      400 {object} util.APIResponse "Unknown topic"
// @Router       /api/events [get]
func StreamEvents(c *gin.Context) {
	b := middleware.GetBus(c)
	if b == nil {
		util.CallServerError(c, util.APIErrorParams{
			Msg: "Refresh events not available",
			Err: fmt.Errorf("bus is nil"),
		})
		return
	}
	topics, err := bus.ParseTopics(c.Query("topics"))
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid topics", Err: err})
		return
	}

	ctx := c.Request.Context()
	events := b.Subscribe(ctx, topics...)

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent("connected", gin.H{"topics": topics, "versions": b.Versions(topics...)})
	c.Writer.Flush()

	ticker := time.NewTicker(heartbeatInterval())
	defer ticker.Stop()

	staff, _ := middleware.GetStaffID(c)
	log.Debug().Str("staff_id", staff).Interface("topics", topics).Msg("event stream opened")
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("staff_id", staff).Msg("event stream closed")
			return
		case <-ticker.C:
			c.SSEvent("heartbeat", gin.H{"at": now().UTC()})
			c.Writer.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent("refresh", ev)
			c.Writer.Flush()
		}
	}
}
