package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/identity"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

const testSecret = "test-secret"

type stubScheduler struct {
	err error

	gotActor  appointment.Actor
	gotCreate appointment.CreateAppointmentInput
	gotUpdate appointment.UpdateAppointmentInput
	gotList   appointment.ListAppointmentsInput
	gotConsul appointment.CreateConsultationInput
}

func (s *stubScheduler) appt(id uuid.UUID) *appointment.Appointment {
	return &appointment.Appointment{ID: id, Status: appointment.StatusScheduled}
}

func (s *stubScheduler) CreateAppointment(ctx context.Context, actor appointment.Actor, in appointment.CreateAppointmentInput) (*appointment.Appointment, error) {
	s.gotActor, s.gotCreate = actor, in
	if s.err != nil {
		return nil, s.err
	}
	a := s.appt(uuid.New())
	a.PatientID, a.DoctorID, a.StartTime, a.EndTime = in.PatientID, in.DoctorID, in.StartTime, in.EndTime
	return a, nil
}

func (s *stubScheduler) UpdateAppointment(ctx context.Context, actor appointment.Actor, id uuid.UUID, in appointment.UpdateAppointmentInput) (*appointment.Appointment, error) {
	s.gotActor, s.gotUpdate = actor, in
	if s.err != nil {
		return nil, s.err
	}
	return s.appt(id), nil
}

func (s *stubScheduler) CancelAppointment(ctx context.Context, actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	if s.err != nil {
		return nil, s.err
	}
	a := s.appt(id)
	a.Status = appointment.StatusCancelled
	return a, nil
}

func (s *stubScheduler) GetAppointment(ctx context.Context, actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.appt(id), nil
}

func (s *stubScheduler) ListAppointments(ctx context.Context, actor appointment.Actor, in appointment.ListAppointmentsInput) ([]appointment.AppointmentDetail, error) {
	s.gotList = in
	if s.err != nil {
		return nil, s.err
	}
	return []appointment.AppointmentDetail{{
		Appointment: *s.appt(uuid.New()),
		PatientName: "Eve",
		DoctorName:  "Ada",
	}}, nil
}

func (s *stubScheduler) UpcomingAppointments(ctx context.Context, actor appointment.Actor) ([]appointment.AppointmentDetail, error) {
	return nil, s.err
}

func (s *stubScheduler) CreateConsultation(ctx context.Context, actor appointment.Actor, in appointment.CreateConsultationInput) (*appointment.Consultation, error) {
	s.gotConsul = in
	if s.err != nil {
		return nil, s.err
	}
	return &appointment.Consultation{ID: uuid.New(), PatientID: in.PatientID, AppointmentID: in.AppointmentID, Diagnosis: in.Diagnosis}, nil
}

func (s *stubScheduler) GetConsultation(ctx context.Context, actor appointment.Actor, id uuid.UUID) (*appointment.Consultation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &appointment.Consultation{ID: id}, nil
}

func (s *stubScheduler) ListConsultations(ctx context.Context, actor appointment.Actor, in appointment.ListConsultationsInput) ([]appointment.Consultation, error) {
	return []appointment.Consultation{}, s.err
}

func (s *stubScheduler) ListDoctors(ctx context.Context, actor appointment.Actor) ([]appointment.User, error) {
	return []appointment.User{{ID: uuid.New(), Name: "Ada", Email: "ada@clinic.test", Role: appointment.RoleDoctor}}, s.err
}

func newTestServer(t *testing.T, svc *stubScheduler) http.Handler {
	t.Helper()
	return NewRouter(RouterConfig{
		Service:      svc,
		PostgresPing: func(context.Context) error { return nil },
		RedisPing:    func(context.Context) error { return nil },
		Env:          "test",
		Version:      "v0",
		JWTSecret:    testSecret,
		Logger:       logging.NewWithWriter(io.Discard, "error"),
	})
}

func bearer(t *testing.T, actor appointment.Actor) string {
	t.Helper()
	token, err := identity.Issue(testSecret, actor, time.Hour, time.Now())
	require.NoError(t, err)
	return "Bearer " + token
}

var frontDesk = appointment.Actor{
	UserID:   uuid.New(),
	Role:     appointment.RoleReceptionist,
	ClinicID: uuid.New(),
	Email:    "front@clinic.test",
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Authorization", bearer(t, frontDesk))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestCreateAppointmentHandler(t *testing.T) {
	svc := &stubScheduler{}
	h := newTestServer(t, svc)
	patientID, doctorID := uuid.New(), uuid.New()

	body := `{"patient_id":"` + patientID.String() + `","doctor_id":"` + doctorID.String() +
		`","start_time":"2030-03-14T09:00:00Z","end_time":"2030-03-14T09:30:00Z"}`
	rec := do(t, h, http.MethodPost, "/appointments", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "SCHEDULED", resp.Status)
	assert.Equal(t, doctorID, resp.DoctorID)

	assert.Equal(t, frontDesk, svc.gotActor)
	assert.Equal(t, patientID, svc.gotCreate.PatientID)
	assert.Equal(t, time.Date(2030, 3, 14, 9, 30, 0, 0, time.UTC), svc.gotCreate.EndTime.UTC())
}

func TestCreateAppointmentHandlerRejectsBadInput(t *testing.T) {
	h := newTestServer(t, &stubScheduler{})

	rec := do(t, h, http.MethodPost, "/appointments", `{"patient_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request_body", decodeError(t, rec).Error)

	rec = do(t, h, http.MethodPost, "/appointments", `{"patient_id":"nope","doctor_id":"`+uuid.NewString()+`","start_time":"2030-03-14T09:00:00Z","end_time":"2030-03-14T09:30:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "validation_error", resp.Error)
	assert.Equal(t, "patient_id", resp.Field)

	rec = do(t, h, http.MethodPost, "/appointments", `{"patient_id":"`+uuid.NewString()+`","doctor_id":"`+uuid.NewString()+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "start_time", decodeError(t, rec).Field)
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{appointment.ErrInvalidTimeRange, http.StatusBadRequest, "validation_error"},
		{appointment.ErrNotADoctor, http.StatusBadRequest, "role_mismatch"},
		{appointment.ErrDoctorNotFound, http.StatusNotFound, "not_found"},
		{appointment.ErrPatientOutsideClinic, http.StatusForbidden, "forbidden"},
		{appointment.ErrSlotTaken, http.StatusConflict, "conflict"},
		{appointment.ErrDoctorBusy, http.StatusConflict, "conflict"},
		{errors.New("pool closed"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.err.Error(), func(t *testing.T) {
			h := newTestServer(t, &stubScheduler{err: tt.err})
			rec := do(t, h, http.MethodGet, "/appointments/"+uuid.NewString(), "")

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Error)
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, resp.Details, "pool closed")
			}
		})
	}

	h := newTestServer(t, &stubScheduler{err: appointment.ErrSlotTaken})
	rec := do(t, h, http.MethodGet, "/appointments/"+uuid.NewString(), "")
	assert.Equal(t, "start_time", decodeError(t, rec).Field)
}

func TestUpdateAppointmentHandler(t *testing.T) {
	svc := &stubScheduler{}
	h := newTestServer(t, svc)
	id := uuid.New()

	rec := do(t, h, http.MethodPatch, "/appointments/"+id.String(), `{"status":"cancelled","start_time":"2030-03-14T10:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, svc.gotUpdate.Status)
	assert.Equal(t, appointment.StatusCancelled, *svc.gotUpdate.Status)
	require.NotNil(t, svc.gotUpdate.StartTime)
	assert.Nil(t, svc.gotUpdate.EndTime)

	rec = do(t, h, http.MethodPatch, "/appointments/"+id.String(), `{"status":"LATE"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "status", decodeError(t, rec).Field)

	rec = do(t, h, http.MethodPatch, "/appointments/not-a-uuid", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelAppointmentHandler(t *testing.T) {
	h := newTestServer(t, &stubScheduler{})

	rec := do(t, h, http.MethodPost, "/appointments/"+uuid.NewString()+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "CANCELLED", resp.Status)
}

func TestListAppointmentsHandlerParsesQuery(t *testing.T) {
	svc := &stubScheduler{}
	h := newTestServer(t, svc)
	doctorID := uuid.New()

	rec := do(t, h, http.MethodGet, "/appointments?period=Week&status=scheduled&limit=10&offset=5&doctor_id="+doctorID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, appointment.PeriodWeek, svc.gotList.Period)
	require.NotNil(t, svc.gotList.DoctorID)
	assert.Equal(t, doctorID, *svc.gotList.DoctorID)
	assert.Nil(t, svc.gotList.PatientID)
	assert.Equal(t, 10, svc.gotList.Limit)
	assert.Equal(t, 5, svc.gotList.Offset)

	var resp AppointmentListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Appointments, 1)
	assert.Equal(t, "Eve", resp.Appointments[0].PatientName)

	for _, q := range []string{"period=year", "status=late", "limit=-1", "doctor_id=x"} {
		rec := do(t, h, http.MethodGet, "/appointments?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestCreateConsultationHandler(t *testing.T) {
	svc := &stubScheduler{}
	h := newTestServer(t, svc)
	patientID, apptID := uuid.New(), uuid.New()

	rec := do(t, h, http.MethodPost, "/consultations",
		`{"patient_id":"`+patientID.String()+`","appointment_id":"`+apptID.String()+`","diagnosis":"Migraine"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, svc.gotConsul.AppointmentID)
	assert.Equal(t, apptID, *svc.gotConsul.AppointmentID)

	svc.err = appointment.ErrConsultationExists
	rec = do(t, h, http.MethodPost, "/consultations",
		`{"patient_id":"`+patientID.String()+`","appointment_id":"`+apptID.String()+`","diagnosis":"Migraine"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListDoctorsHandler(t *testing.T) {
	h := newTestServer(t, &stubScheduler{})

	rec := do(t, h, http.MethodGet, "/doctors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp DoctorListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Doctors, 1)
	assert.Equal(t, "Ada", resp.Doctors[0].Name)
}

func TestAuthenticationRequired(t *testing.T) {
	h := newTestServer(t, &stubScheduler{})

	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/appointments", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	h := NewRouter(RouterConfig{
		Service:      &stubScheduler{},
		PostgresPing: func(context.Context) error { return nil },
		RedisPing:    func(context.Context) error { return errors.New("down") },
		Version:      "v1",
		JWTSecret:    testSecret,
		Logger:       logging.NewWithWriter(io.Discard, "error"),
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var ready ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ready))
	assert.Equal(t, "degraded", ready.Status)
	assert.Equal(t, "down", ready.Dependencies["redis"])

	noPg := NewRouter(RouterConfig{Service: &stubScheduler{}, JWTSecret: testSecret, Logger: logging.NewWithWriter(io.Discard, "error")})
	rec = httptest.NewRecorder()
	noPg.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
