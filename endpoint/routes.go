package endpoint

import (
	"fmt"
	"net/http"

	"github.com/ariebrainware/hospital-dashboard/bus"
	"github.com/ariebrainware/hospital-dashboard/middleware"
	"github.com/ariebrainware/hospital-dashboard/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RouterOptions carries what the handlers need from the process.
type RouterOptions struct {
	AppName   string
	DB        *gorm.DB
	Bus       *bus.Bus
	RateLimit middleware.RateLimitConfig
}

// Healthz godoc
// @Summary      Health check
// @Description  Pings the database
// @Tags         Health
// @Produce      json
// @Success      200 {object} util.APIResponse "OK"
// @Failure      500 {object} util.APIResponse "Database unreachable"
// @Router       /healthz [get]
func Healthz(c *gin.Context) {
	db, ok := requireDB(c)
	if !ok {
		return
	}
	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Database unreachable", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "OK", Data: map[string]interface{}{"database": "up"}})
}

// NewRouter wires middleware and routes. Every /api route needs a staff
// token; form submissions are rate limited.
func NewRouter(opts RouterOptions) *gin.Engine {
	util.RegisterValidators()

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestLogger(),
		middleware.Metrics(),
		middleware.CORSMiddleware(),
		middleware.DatabaseMiddleware(opts.DB),
		middleware.BusMiddleware(opts.Bus),
	)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("Welcome to %s!", opts.AppName),
		})
	})
	router.GET("/healthz", Healthz)
	router.GET("/metrics", middleware.MetricsHandler())

	api := router.Group("/api", middleware.ValidateStaffToken())
	limited := middleware.RateLimiter(opts.RateLimit)

	api.GET("/dashboard/stats", DashboardStats)
	api.GET("/activity", RecentActivity)
	api.GET("/events", StreamEvents)

	api.GET("/patients", ListPatients)
	api.GET("/patients/bed-eligible", ListBedEligiblePatients)
	api.GET("/patients/:id", GetPatient)
	api.POST("/patients", limited, RegisterPatient)
	api.PATCH("/patients/:id/status", limited, UpdatePatientStatus)

	api.GET("/doctors", ListDoctors)
	api.PATCH("/doctors/:id/status", limited, UpdateDoctorStatus)

	api.GET("/appointments", ListAppointments)
	api.POST("/appointments", limited, ScheduleAppointment)
	api.PATCH("/appointments/:id/status", limited, UpdateAppointmentStatus)

	api.GET("/beds", ListBeds)
	api.GET("/beds/occupancy", BedOccupancy)
	api.GET("/beds/occupancy/export", ExportOccupancy)
	api.POST("/beds/assign", limited, AssignBed)
	api.POST("/beds/:id/release", limited, ReleaseBed)

	return router
}
