package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

// Scheduler is the part of appointment.Service the HTTP layer needs.
type Scheduler interface {
	CreateAppointment(ctx context.Context, actor appointment.Actor, in appointment.CreateAppointmentInput) (*appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, actor appointment.Actor, id uuid.UUID, in appointment.UpdateAppointmentInput) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error)
	ListAppointments(ctx context.Context, actor appointment.Actor, in appointment.ListAppointmentsInput) ([]appointment.AppointmentDetail, error)
	UpcomingAppointments(ctx context.Context, actor appointment.Actor) ([]appointment.AppointmentDetail, error)

	CreateConsultation(ctx context.Context, actor appointment.Actor, in appointment.CreateConsultationInput) (*appointment.Consultation, error)
	GetConsultation(ctx context.Context, actor appointment.Actor, id uuid.UUID) (*appointment.Consultation, error)
	ListConsultations(ctx context.Context, actor appointment.Actor, in appointment.ListConsultationsInput) ([]appointment.Consultation, error)
	ListDoctors(ctx context.Context, actor appointment.Actor) ([]appointment.User, error)
}

type RouterConfig struct {
	Service        Scheduler
	PostgresPing   Pinger
	RedisPing      Pinger
	Env            string
	Version        string
	JWTSecret      string
	Logger         *logging.Logger
	MetricsHandler http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	h := &handlers{svc: cfg.Service, logger: logger}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.PostgresPing, cfg.RedisPing, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(cfg.JWTSecret))

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.createAppointment)
			r.Get("/", h.listAppointments)
			r.Get("/upcoming", h.upcomingAppointments)
			r.Get("/{id}", h.getAppointment)
			r.Patch("/{id}", h.updateAppointment)
			r.Post("/{id}/cancel", h.cancelAppointment)
		})

		r.Route("/consultations", func(r chi.Router) {
			r.Post("/", h.createConsultation)
			r.Get("/", h.listConsultations)
			r.Get("/{id}", h.getConsultation)
		})

		r.Get("/doctors", h.listDoctors)
	})

	return r
}
