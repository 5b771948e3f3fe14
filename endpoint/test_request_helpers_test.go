package endpoint

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariebrainware/hospital-dashboard/bus"
	"github.com/ariebrainware/hospital-dashboard/config"
	"github.com/ariebrainware/hospital-dashboard/model"
	"github.com/ariebrainware/hospital-dashboard/util"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fixedNow is the pinned clock for endpoint tests: 2026-03-14 10:00 local.
var fixedNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.Local)

const (
	testToday     = "2026-03-14"
	testYesterday = "2026-03-13"
	testTomorrow  = "2026-03-15"
	testStaffID   = "staff-1"
)

var dbSeq int64

// testWards are the wards the occupancy widget lists when WARDS is unset.
var testWards = config.DefaultWards

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	bus    *bus.Bus
	token  string
}

// setupEndpointTest opens a private in-memory database with every table
// migrated, pins the clock and builds the full router.
func setupEndpointTest(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:endpoint_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), atomic.AddInt64(&dbSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, model.Migrate(db))

	util.SetActivityLoggerDB(db)
	util.ViewCacheFlush()
	prevNow := util.Now
	util.Now = func() time.Time { return fixedNow }
	t.Cleanup(func() {
		util.Now = prevNow
		util.SetActivityLoggerDB(nil)
		_ = sqlDB.Close()
	})

	token, err := util.CreateStaffToken(testStaffID, "Test Nurse", time.Hour)
	require.NoError(t, err)

	b := bus.New(nil)
	return &testEnv{
		router: NewRouter(RouterOptions{AppName: "Hospital Dashboard", DB: db, Bus: b}),
		db:     db,
		bus:    b,
		token:  token,
	}
}

type requestSpec struct {
	method  string
	path    string
	body    interface{}
	headers map[string]string
}

// do sends an authenticated request and decodes the JSON envelope.
func (e *testEnv) do(t *testing.T, spec requestSpec) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	if spec.headers == nil {
		spec.headers = map[string]string{}
	}
	if _, ok := spec.headers["Authorization"]; !ok {
		spec.headers["Authorization"] = "Bearer " + e.token
	}
	return performRequest(t, e.router, spec)
}

func performRequest(t *testing.T, r http.Handler, spec requestSpec) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *strings.Reader
	setJSONHeader := false
	switch v := spec.body.(type) {
	case nil:
		reader = strings.NewReader("")
	case string:
		reader = strings.NewReader(v)
		setJSONHeader = true
	default:
		b, err := json.Marshal(spec.body)
		require.NoError(t, err)
		reader = strings.NewReader(string(b))
		setJSONHeader = true
	}

	req := httptest.NewRequest(spec.method, spec.path, reader)
	if setJSONHeader {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range spec.headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var response map[string]interface{}
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	}
	return w, response
}

func dataOf(t *testing.T, response map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := response["data"].(map[string]interface{})
	require.True(t, ok, "response data is not an object: %v", response["data"])
	return data
}

func rowsOf(t *testing.T, response map[string]interface{}, key string) []map[string]interface{} {
	t.Helper()
	raw, ok := dataOf(t, response)[key].([]interface{})
	require.True(t, ok, "data.%s is not a list", key)
	rows := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, r.(map[string]interface{}))
	}
	return rows
}

func column(rows []map[string]interface{}, key string) []interface{} {
	out := make([]interface{}, 0, len(rows))
	for _, r := range rows {
		out = append(out, r[key])
	}
	return out
}

// recordWrites captures every insert and update attempted on db, in order,
// as "insert <table>" / "update <table>". Activity log inserts are ignored.
func recordWrites(t *testing.T, db *gorm.DB) *[]string {
	t.Helper()
	var writes []string
	record := func(kind string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			if tx.Statement.Table == "activity_logs" {
				return
			}
			writes = append(writes, kind+" "+tx.Statement.Table)
		}
	}
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:record_insert", record("insert")))
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:record_update", record("update")))
	return &writes
}

// recordLocks collects the tables read with a row locking clause.
func recordLocks(t *testing.T, db *gorm.DB) *[]string {
	t.Helper()
	var locked []string
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("test:record_lock", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Clauses["FOR"]; ok {
			locked = append(locked, tx.Statement.Table)
		}
	}))
	return &locked
}

// failWrites makes every insert and update on table fail with err.
func failWrites(t *testing.T, db *gorm.DB, table string, err error) {
	t.Helper()
	fail := func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			_ = tx.AddError(err)
		}
	}
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_insert_"+table, fail))
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:fail_update_"+table, fail))
}

func strPtr(s string) *string { return &s }

func seedPatient(t *testing.T, db *gorm.DB, p model.Patient) model.Patient {
	t.Helper()
	if p.Phone == "" {
		p.Phone = "5550100000"
	}
	if p.DateOfBirth == "" {
		p.DateOfBirth = "1980-06-01"
	}
	if p.Gender == "" {
		p.Gender = "female"
	}
	if p.Status == "" {
		p.Status = model.PatientOutpatient
	}
	if p.PatientCode == "" {
		var n int64
		require.NoError(t, db.Unscoped().Model(&model.Patient{}).Count(&n).Error)
		p.PatientCode = util.FormatPatientCode("P", int(n)+1)
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func seedDoctor(t *testing.T, db *gorm.DB, d model.Doctor) model.Doctor {
	t.Helper()
	if d.Specialty == "" {
		d.Specialty = "General Medicine"
	}
	if d.Status == "" {
		d.Status = model.DoctorAvailable
	}
	require.NoError(t, db.Create(&d).Error)
	return d
}

func seedBed(t *testing.T, db *gorm.DB, b model.Bed) model.Bed {
	t.Helper()
	if b.Status == "" {
		b.Status = model.BedAvailable
	}
	require.NoError(t, db.Create(&b).Error)
	return b
}

func seedAppointment(t *testing.T, db *gorm.DB, a model.Appointment) model.Appointment {
	t.Helper()
	if a.Type == "" {
		a.Type = model.AppointmentInPerson
	}
	if a.Status == "" {
		a.Status = model.AppointmentScheduled
	}
	if a.Reason == "" {
		a.Reason = "Follow-up"
	}
	require.NoError(t, db.Create(&a).Error)
	return a
}
