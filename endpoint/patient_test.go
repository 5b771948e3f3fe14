package endpoint

import (
	"errors"
	"net/http"
	"testing"

	"github.com/ariebrainware/hospital-dashboard/bus"
	"github.com/ariebrainware/hospital-dashboard/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRegistration() map[string]interface{} {
	return map[string]interface{}{
		"full_name":               "  Jane    Doe ",
		"email":                   "jane@example.com",
		"phone":                   "5550101234",
		"date_of_birth":           "1985-04-12",
		"gender":                  "female",
		"address":                 "   ",
		"emergency_contact_name":  "John Doe",
		"emergency_contact_phone": "5550109999",
		"blood_type":              "O+",
		"medical_history":         "",
		"allergies":               "Penicillin",
	}
}

func TestRegisterPatient_FreshSequence(t *testing.T) {
	env := setupEndpointTest(t)
	for i := 0; i < 3; i++ {
		seedPatient(t, env.db, model.Patient{FullName: "Existing Patient"})
	}
	writes := recordWrites(t, env.db)

	w, resp := env.do(t, requestSpec{method: http.MethodPost, path: "/api/patients", body: validRegistration()})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "Jane Doe has been registered with ID P00004", resp["msg"])

	assert.Equal(t, []string{
		"update patient_codes",
		"insert patient_codes",
		"update patient_codes",
		"insert patients",
	}, *writes)

	var stored model.Patient
	require.NoError(t, env.db.Where("patient_code = ?", "P00004").First(&stored).Error)
	assert.Equal(t, "Jane Doe", stored.FullName)
	assert.Equal(t, model.PatientOutpatient, stored.Status)
	assert.Equal(t, "5550101234", stored.Phone)
	assert.Equal(t, "1985-04-12", stored.DateOfBirth)
	require.NotNil(t, stored.Email)
	assert.Equal(t, "jane@example.com", *stored.Email)
	assert.Nil(t, stored.Address)
	assert.Nil(t, stored.MedicalHistory)
	require.NotNil(t, stored.Allergies)
	assert.Equal(t, "Penicillin", *stored.Allergies)
	require.NotNil(t, stored.CreatedBy)
	assert.Equal(t, testStaffID, *stored.CreatedBy)

	var seq model.PatientCode
	require.NoError(t, env.db.Where("prefix = ?", "P").First(&seq).Error)
	assert.Equal(t, 4, seq.Number)
	assert.Equal(t, "P00004", seq.LastCode)
}

func TestRegisterPatient_ExistingSequence(t *testing.T) {
	env := setupEndpointTest(t)

	w, _ := env.do(t, requestSpec{method: http.MethodPost, path: "/api/patients", body: validRegistration()})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	writes := recordWrites(t, env.db)
	body := validRegistration()
	body["full_name"] = "John Smith"
	w, resp := env.do(t, requestSpec{method: http.MethodPost, path: "/api/patients", body: body})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "John Smith has been registered with ID P00002", resp["msg"])
	assert.Equal(t, []string{
		"update patient_codes",
		"update patient_codes",
		"insert patients",
	}, *writes)
}

func TestRegisterPatient_InvalidFormWritesNothing(t *testing.T) {
	env := setupEndpointTest(t)
	writes := recordWrites(t, env.db)

	tests := []struct {
		name    string
		mutate  func(map[string]interface{})
		wantMsg string
	}{
		{"missing name", func(b map[string]interface{}) { b["full_name"] = "" }, "full_name is required"},
		{"name too short", func(b map[string]interface{}) { b["full_name"] = " J " }, "full_name must be between 2 and 100 characters"},
		{"missing phone", func(b map[string]interface{}) { delete(b, "phone") }, "phone is required"},
		{"short phone", func(b map[string]interface{}) { b["phone"] = "555" }, "phone must be at least 10 characters"},
		{"bad email", func(b map[string]interface{}) { b["email"] = "not-an-email" }, "email must be a valid email address"},
		{"bad date", func(b map[string]interface{}) { b["date_of_birth"] = "12/04/1985" }, "date_of_birth must be a date in YYYY-MM-DD format"},
		{"future birth", func(b map[string]interface{}) { b["date_of_birth"] = "2999-01-01" }, "date_of_birth cannot be in the future"},
		{"bad gender", func(b map[string]interface{}) { b["gender"] = "x" }, "gender must be one of: male, female, other"},
		{"bad blood type", func(b map[string]interface{}) { b["blood_type"] = "C+" }, "blood_type must be one of: A+, A-, B+, B-, AB+, AB-, O+, O-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := validRegistration()
			tt.mutate(body)
			w, resp := env.do(t, requestSpec{method: http.MethodPost, path: "/api/patients", body: body})
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, false, resp["success"])
			assert.Equal(t, tt.wantMsg, resp["msg"])
		})
	}

	assert.Empty(t, *writes)
	var n int64
	require.NoError(t, env.db.Model(&model.Patient{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestRegisterPatient_MalformedJSON(t *testing.T) {
	env := setupEndpointTest(t)
	w, resp := env.do(t, requestSpec{method: http.MethodPost, path: "/api/patients", body: "{not json"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, resp["success"])
}

func TestRegisterPatient_SequenceFailureStopsRegistration(t *testing.T) {
	env := setupEndpointTest(t)
	failWrites(t, env.db, "patient_codes", errors.New("sequence table is locked"))
	writes := recordWrites(t, env.db)

	w, resp := env.do(t, requestSpec{method: http.MethodPost, path: "/api/patients", body: validRegistration()})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "sequence table is locked", resp["error"])
	assert.Equal(t, []string{"update patient_codes"}, *writes)

	var n int64
	require.NoError(t, env.db.Model(&model.Patient{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestRegisterPatient_InsertFailureRollsBackSequence(t *testing.T) {
	env := setupEndpointTest(t)
	failWrites(t, env.db, "patients", errors.New("disk full"))

	w, resp := env.do(t, requestSpec{method: http.MethodPost, path: "/api/patients", body: validRegistration()})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "disk full", resp["error"])
	assert.Equal(t, "Failed to register patient", resp["msg"])

	var patients, codes int64
	require.NoError(t, env.db.Model(&model.Patient{}).Count(&patients).Error)
	require.NoError(t, env.db.Model(&model.PatientCode{}).Count(&codes).Error)
	assert.Zero(t, patients)
	assert.Zero(t, codes)
	assert.Equal(t, uint64(0), env.bus.Version(bus.TopicPatients))
}

func TestRegisterPatient_PublishesPatientsRefresh(t *testing.T) {
	env := setupEndpointTest(t)

	w, _ := env.do(t, requestSpec{method: http.MethodPost, path: "/api/patients", body: validRegistration()})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, uint64(1), env.bus.Version(bus.TopicPatients))
	assert.Equal(t, uint64(0), env.bus.Version(bus.TopicBeds))
	assert.Equal(t, uint64(0), env.bus.Version(bus.TopicAppointments))

	var entries []model.ActivityLog
	require.NoError(t, env.db.Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, "PATIENT_REGISTERED", entries[0].EventType)
	assert.Equal(t, testStaffID, entries[0].ActorID)
}

func TestListPatients(t *testing.T) {
	env := setupEndpointTest(t)
	jane := seedPatient(t, env.db, model.Patient{FullName: "Jane Doe", Status: model.PatientAdmitted, DateOfBirth: "1986-03-15"})
	seedPatient(t, env.db, model.Patient{FullName: "John Smith", Status: model.PatientOutpatient})
	seedPatient(t, env.db, model.Patient{FullName: "Mary Major", Status: model.PatientCritical})
	seedBed(t, env.db, model.Bed{BedNumber: "ICU-1", Ward: "ICU", Status: model.BedOccupied, PatientID: &jane.ID})

	t.Run("all patients sorted by name", func(t *testing.T) {
		w, resp := env.do(t, requestSpec{method: http.MethodGet, path: "/api/patients?sort=full_name"})
		require.Equal(t, http.StatusOK, w.Code)
		data := dataOf(t, resp)
		assert.Equal(t, "list", data["state"])
		assert.Equal(t, float64(3), data["total"])
		rows := rowsOf(t, resp, "patients")
		assert.Equal(t, []interface{}{"Jane Doe", "John Smith", "Mary Major"}, column(rows, "full_name"))
		assert.Equal(t, "ICU-1", rows[0]["bed"])
		assert.Equal(t, "ICU", rows[0]["ward"])
		assert.Equal(t, float64(39), rows[0]["age"])
		assert.Equal(t, "JD", rows[0]["initials"])
		assert.Equal(t, "Not assigned", rows[1]["bed"])
		assert.Equal(t, "-", rows[1]["email"])
	})

	t.Run("status filter", func(t *testing.T) {
		w, resp := env.do(t, requestSpec{method: http.MethodGet, path: "/api/patients?status=critical,admitted&sort=full_name&sort_dir=desc"})
		require.Equal(t, http.StatusOK, w.Code)
		rows := rowsOf(t, resp, "patients")
		assert.Equal(t, []interface{}{"Mary Major", "Jane Doe"}, column(rows, "full_name"))
	})

	t.Run("keyword", func(t *testing.T) {
		_, resp := env.do(t, requestSpec{method: http.MethodGet, path: "/api/patients?keyword=smith"})
		rows := rowsOf(t, resp, "patients")
		assert.Equal(t, []interface{}{"John Smith"}, column(rows, "full_name"))
	})

	t.Run("no match renders empty state", func(t *testing.T) {
		_, resp := env.do(t, requestSpec{method: http.MethodGet, path: "/api/patients?keyword=nobody"})
		data := dataOf(t, resp)
		assert.Equal(t, "empty", data["state"])
		assert.Equal(t, "No patients found", data["empty_message"])
	})

	t.Run("unknown status", func(t *testing.T) {
		w, _ := env.do(t, requestSpec{method: http.MethodGet, path: "/api/patients?status=sleeping"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListPatients_ReadFailureServesEmptyView(t *testing.T) {
	env := setupEndpointTest(t)
	require.NoError(t, env.db.Migrator().DropTable(&model.Patient{}))

	w, resp := env.do(t, requestSpec{method: http.MethodGet, path: "/api/patients"})
	require.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, resp)
	assert.Equal(t, "empty", data["state"])
	assert.Equal(t, true, data["degraded"])
	assert.Empty(t, data["patients"])
}

func TestListBedEligiblePatients(t *testing.T) {
	env := setupEndpointTest(t)
	bedded := seedPatient(t, env.db, model.Patient{FullName: "Bea Bedded", Status: model.PatientAdmitted})
	seedPatient(t, env.db, model.Patient{FullName: "Zed Critical", Status: model.PatientCritical})
	seedPatient(t, env.db, model.Patient{FullName: "Al Admitted", Status: model.PatientAdmitted})
	seedPatient(t, env.db, model.Patient{FullName: "Dee Discharged", Status: model.PatientDischarged})
	seedPatient(t, env.db, model.Patient{FullName: "Otto Outpatient", Status: model.PatientOutpatient})
	seedBed(t, env.db, model.Bed{BedNumber: "GW-1", Ward: "General Ward", Status: model.BedOccupied, PatientID: &bedded.ID})

	w, resp := env.do(t, requestSpec{method: http.MethodGet, path: "/api/patients/bed-eligible"})
	require.Equal(t, http.StatusOK, w.Code)
	rows := rowsOf(t, resp, "patients")
	assert.Equal(t, []interface{}{"Al Admitted", "Otto Outpatient", "Zed Critical"}, column(rows, "full_name"))
}

func TestGetPatient(t *testing.T) {
	env := setupEndpointTest(t)
	jane := seedPatient(t, env.db, model.Patient{FullName: "Jane Doe", Status: model.PatientAdmitted})
	seedBed(t, env.db, model.Bed{BedNumber: "ICU-2", Ward: "ICU", Status: model.BedOccupied, PatientID: &jane.ID})

	w, resp := env.do(t, requestSpec{method: http.MethodGet, path: "/api/patients/" + jane.ID})
	require.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, resp)
	assert.Equal(t, "Admitted", data["status_label"])
	bed := data["bed"].(map[string]interface{})
	assert.Equal(t, "ICU-2", bed["bed_number"])

	w, resp = env.do(t, requestSpec{method: http.MethodGet, path: "/api/patients/missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "patient not found", resp["error"])
}

func TestUpdatePatientStatus(t *testing.T) {
	env := setupEndpointTest(t)
	jane := seedPatient(t, env.db, model.Patient{FullName: "Jane Doe", Status: model.PatientAdmitted})

	w, resp := env.do(t, requestSpec{
		method: http.MethodPatch,
		path:   "/api/patients/" + jane.ID + "/status",
		body:   map[string]string{"status": "critical"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "critical", dataOf(t, resp)["status"])

	var stored model.Patient
	require.NoError(t, env.db.First(&stored, "id = ?", jane.ID).Error)
	assert.Equal(t, model.PatientCritical, stored.Status)
	assert.Equal(t, uint64(1), env.bus.Version(bus.TopicPatients))

	w, resp = env.do(t, requestSpec{
		method: http.MethodPatch,
		path:   "/api/patients/" + jane.ID + "/status",
		body:   map[string]string{"status": "asleep"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "status must be one of: admitted, outpatient, discharged, critical", resp["msg"])

	w, resp = env.do(t, requestSpec{
		method: http.MethodPatch,
		path:   "/api/patients/missing/status",
		body:   map[string]string{"status": "admitted"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "patient not found", resp["error"])
}

func TestUpdatePatientStatus_DischargeWhileHoldingBed(t *testing.T) {
	env := setupEndpointTest(t)
	jane := seedPatient(t, env.db, model.Patient{FullName: "Jane Doe", Status: model.PatientAdmitted})
	bed := seedBed(t, env.db, model.Bed{BedNumber: "ICU-1", Ward: "ICU", Status: model.BedOccupied, PatientID: &jane.ID})
	discharge := requestSpec{
		method: http.MethodPatch,
		path:   "/api/patients/" + jane.ID + "/status",
		body:   map[string]string{"status": "discharged"},
	}

	w, resp := env.do(t, discharge)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "patient already occupies a bed: release the bed before marking the patient discharged", resp["error"])

	var stored model.Patient
	require.NoError(t, env.db.First(&stored, "id = ?", jane.ID).Error)
	assert.Equal(t, model.PatientAdmitted, stored.Status)
	assert.Equal(t, uint64(0), env.bus.Version(bus.TopicPatients))

	w, _ = env.do(t, requestSpec{method: http.MethodPost, path: "/api/beds/" + bed.ID + "/release"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, resp = env.do(t, discharge)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "discharged", dataOf(t, resp)["status"])
}
