package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

var errNoPinger = errors.New("dependency check not configured")

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type handlers struct {
	svc    Scheduler
	logger *logging.Logger
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateAppointmentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	appt, err := h.svc.CreateAppointment(r.Context(), actor, appointment.CreateAppointmentInput{
		PatientID: uuid.MustParse(req.PatientID),
		DoctorID:  uuid.MustParse(req.DoctorID),
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Reason:    req.Reason,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *handlers) updateAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req UpdateAppointmentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	in := appointment.UpdateAppointmentInput{
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Reason:    req.Reason,
	}
	if req.PatientID != nil {
		pid := uuid.MustParse(*req.PatientID)
		in.PatientID = &pid
	}
	if req.DoctorID != nil {
		did := uuid.MustParse(*req.DoctorID)
		in.DoctorID = &did
	}
	if req.Status != nil {
		status, err := appointment.ParseStatus(*req.Status)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		in.Status = &status
	}

	appt, err := h.svc.UpdateAppointment(r.Context(), actor, id, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	appt, err := h.svc.CancelAppointment(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	appt, err := h.svc.GetAppointment(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var in appointment.ListAppointmentsInput

	period, err := appointment.ParsePeriod(q.Get("period"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	in.Period = period

	if in.DoctorID, ok = queryUUID(w, r, "doctor_id"); !ok {
		return
	}
	if in.PatientID, ok = queryUUID(w, r, "patient_id"); !ok {
		return
	}
	if raw := q.Get("status"); raw != "" {
		status, err := appointment.ParseStatus(raw)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		in.Status = &status
	}
	if in.Limit, in.Offset, ok = queryPage(w, r); !ok {
		return
	}

	list, err := h.svc.ListAppointments(r.Context(), actor, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentList(list))
}

func (h *handlers) upcomingAppointments(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	list, err := h.svc.UpcomingAppointments(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentList(list))
}

func (h *handlers) createConsultation(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateConsultationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	in := appointment.CreateConsultationInput{
		PatientID: uuid.MustParse(req.PatientID),
		Diagnosis: req.Diagnosis,
		Notes:     req.Notes,
	}
	if req.AppointmentID != nil {
		aid := uuid.MustParse(*req.AppointmentID)
		in.AppointmentID = &aid
	}

	c, err := h.svc.CreateConsultation(r.Context(), actor, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toConsultationResponse(c))
}

func (h *handlers) getConsultation(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	c, err := h.svc.GetConsultation(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toConsultationResponse(c))
}

func (h *handlers) listConsultations(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var in appointment.ListConsultationsInput
	if in.PatientID, ok = queryUUID(w, r, "patient_id"); !ok {
		return
	}
	if in.Limit, in.Offset, ok = queryPage(w, r); !ok {
		return
	}

	list, err := h.svc.ListConsultations(r.Context(), actor, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]ConsultationResponse, 0, len(list))
	for i := range list {
		out = append(out, toConsultationResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, ConsultationListResponse{Consultations: out})
}

func (h *handlers) listDoctors(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	doctors, err := h.svc.ListDoctors(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]DoctorResponse, 0, len(doctors))
	for _, d := range doctors {
		out = append(out, DoctorResponse{ID: d.ID, Name: d.Name, Email: d.Email})
	}
	writeJSON(w, http.StatusOK, DoctorListResponse{Doctors: out})
}

// writeServiceError maps error kinds to HTTP statuses. Anything unclassified is a 500
// and its details stay in the log.
func (h *handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var field string
	var domainErr *appointment.Error
	if errors.As(err, &domainErr) {
		field = domainErr.Field
	}

	switch {
	case errors.Is(err, appointment.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), field)
	case errors.Is(err, appointment.ErrRoleMismatch):
		writeError(w, http.StatusBadRequest, "role_mismatch", err.Error(), field)
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), field)
	case errors.Is(err, appointment.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error(), field)
	case errors.Is(err, appointment.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error(), field)
	default:
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", GetRequestID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", "")
	}
}

func requireActor(w http.ResponseWriter, r *http.Request) (appointment.Actor, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing actor", "")
	}
	return actor, ok
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON", "")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			writeError(w, http.StatusBadRequest, "validation_error",
				fe.Field()+" failed "+fe.Tag()+" validation", fe.Field())
			return false
		}
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), "")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID", "id")
		return uuid.Nil, false
	}
	return id, true
}

func queryUUID(w http.ResponseWriter, r *http.Request, key string) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", key+" must be a valid UUID", key)
		return nil, false
	}
	return &id, true
}

func queryPage(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	for _, p := range []struct {
		key string
		dst *int
	}{{"limit", &limit}, {"offset", &offset}} {
		raw := q.Get(p.key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "validation_error", p.key+" must be a non-negative integer", p.key)
			return 0, 0, false
		}
		*p.dst = n
	}
	return limit, offset, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details, field string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details, Field: field})
}
