package appointment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store. Transactions are serialised and roll back by
// restoring a snapshot. Create and update reject overlaps the way the
// exclusion constraint does.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	patients      map[uuid.UUID]Patient
	users         map[uuid.UUID]User
	appointments  map[uuid.UUID]Appointment
	consultations map[uuid.UUID]Consultation
	events        []EventLog

	// skipConflictQuery makes FindConflictingAppointment report nothing so the
	// constraint path is exercised.
	skipConflictQuery bool
	failStatusUpdate  error
	failInsertEvent   error
	doctorLocks       int
}

func newMemStore() *memStore {
	return &memStore{
		patients:      map[uuid.UUID]Patient{},
		users:         map[uuid.UUID]User{},
		appointments:  map[uuid.UUID]Appointment{},
		consultations: map[uuid.UUID]Consultation{},
	}
}

type memSnapshot struct {
	appointments  map[uuid.UUID]Appointment
	consultations map[uuid.UUID]Consultation
	events        []EventLog
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := memSnapshot{
		appointments:  make(map[uuid.UUID]Appointment, len(s.appointments)),
		consultations: make(map[uuid.UUID]Consultation, len(s.consultations)),
		events:        append([]EventLog(nil), s.events...),
	}
	for k, v := range s.appointments {
		snap.appointments[k] = v
	}
	for k, v := range s.consultations {
		snap.consultations[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments = snap.appointments
	s.consultations = snap.consultations
	s.events = snap.events
}

func (s *memStore) InTx(ctx context.Context, fn func(tx Repository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) addPatient(clinicID uuid.UUID, name, email string) Patient {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Patient{ID: uuid.New(), ClinicID: clinicID, Name: name}
	if email != "" {
		p.Email = &email
	}
	s.patients[p.ID] = p
	return p
}

func (s *memStore) addUser(clinicID uuid.UUID, name string, role Role) User {
	s.mu.Lock()
	defer s.mu.Unlock()

	cid := clinicID
	u := User{
		ID:       uuid.New(),
		ClinicID: &cid,
		Name:     name,
		Email:    strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@clinic.test",
		Role:     role,
	}
	s.users[u.ID] = u
	return u
}

// seedAppointment inserts directly, bypassing every check.
func (s *memStore) seedAppointment(a Appointment) Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	s.appointments[a.ID] = a
	return a
}

func (s *memStore) appointment(id uuid.UUID) Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appointments[id]
}

func (s *memStore) consultationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.consultations)
}

func (s *memStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (s *memStore) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (s *memStore) FindPatientByEmail(ctx context.Context, clinicID uuid.UUID, email string) (*Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.patients {
		if p.ClinicID == clinicID && p.Email != nil && strings.EqualFold(*p.Email, email) {
			return &p, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (s *memStore) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *memStore) ListDoctors(ctx context.Context, clinicID uuid.UUID) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []User{}
	for _, u := range s.users {
		if u.Role == RoleDoctor && u.BelongsTo(clinicID) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) LockDoctor(ctx context.Context, doctorID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[doctorID]; !ok {
		return ErrDoctorNotFound
	}
	s.doctorLocks++
	return nil
}

func (s *memStore) overlapping(doctorID uuid.UUID, start, end time.Time, exclude uuid.UUID) *Appointment {
	for _, a := range s.appointments {
		if a.DoctorID != doctorID || a.ID == exclude || !a.Status.BlocksSchedule() {
			continue
		}
		if Overlaps(start, end, a.StartTime, a.EndTime) {
			return &a
		}
	}
	return nil
}

func (s *memStore) FindConflictingAppointment(ctx context.Context, doctorID uuid.UUID, start, end time.Time, exclude *uuid.UUID) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.skipConflictQuery {
		return nil, ErrAppointmentNotFound
	}
	var ex uuid.UUID
	if exclude != nil {
		ex = *exclude
	}
	if a := s.overlapping(doctorID, start, end, ex); a != nil {
		return a, nil
	}
	return nil, ErrAppointmentNotFound
}

func (s *memStore) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *memStore) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.GetAppointmentByID(ctx, id)
}

func (s *memStore) ListAppointments(ctx context.Context, f AppointmentFilter) ([]AppointmentDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []AppointmentDetail{}
	for _, a := range s.appointments {
		switch {
		case a.ClinicID != f.ClinicID:
			continue
		case f.PatientID != nil && a.PatientID != *f.PatientID:
			continue
		case f.DoctorID != nil && a.DoctorID != *f.DoctorID:
			continue
		case f.Status != nil && a.Status != *f.Status:
			continue
		case f.From != nil && a.StartTime.Before(*f.From):
			continue
		case f.To != nil && !a.StartTime.Before(*f.To):
			continue
		}
		out = append(out, AppointmentDetail{
			Appointment: a,
			PatientName: s.patients[a.PatientID].Name,
			DoctorName:  s.users[a.DoctorID].Name,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if f.Ascending {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].StartTime.After(out[j].StartTime)
	})

	if f.Offset >= len(out) {
		return []AppointmentDetail{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memStore) CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.overlapping(in.DoctorID, in.StartTime, in.EndTime, uuid.Nil) != nil {
		return nil, ErrSlotTaken
	}
	a := Appointment{
		ID:        uuid.New(),
		ClinicID:  in.ClinicID,
		PatientID: in.PatientID,
		DoctorID:  in.DoctorID,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Status:    StatusScheduled,
		Reason:    in.Reason,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.appointments[a.ID] = a
	return &a, nil
}

func (s *memStore) UpdateAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.appointments[appt.ID]; !ok {
		return nil, ErrAppointmentNotFound
	}
	if appt.Status.BlocksSchedule() && s.overlapping(appt.DoctorID, appt.StartTime, appt.EndTime, appt.ID) != nil {
		return nil, ErrSlotTaken
	}
	appt.UpdatedAt = time.Now()
	s.appointments[appt.ID] = appt
	return &appt, nil
}

func (s *memStore) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failStatusUpdate != nil {
		return nil, s.failStatusUpdate
	}
	a, ok := s.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	s.appointments[id] = a
	return &a, nil
}

func (s *memStore) FindUpcomingScheduled(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Appointment
	for _, a := range s.appointments {
		if a.Status == StatusScheduled && !a.StartTime.Before(from) && a.StartTime.Before(to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *memStore) GetConsultationByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.consultations[id]
	if !ok {
		return nil, ErrConsultationNotFound
	}
	return &c, nil
}

func (s *memStore) GetConsultationByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.consultations {
		if c.AppointmentID != nil && *c.AppointmentID == appointmentID {
			return &c, nil
		}
	}
	return nil, ErrConsultationNotFound
}

func (s *memStore) CreateConsultation(ctx context.Context, in NewConsultation) (*Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.AppointmentID != nil {
		for _, c := range s.consultations {
			if c.AppointmentID != nil && *c.AppointmentID == *in.AppointmentID {
				return nil, ErrConsultationExists
			}
		}
	}
	c := Consultation{
		ID:            uuid.New(),
		ClinicID:      in.ClinicID,
		PatientID:     in.PatientID,
		DoctorID:      in.DoctorID,
		AppointmentID: in.AppointmentID,
		Diagnosis:     in.Diagnosis,
		Notes:         in.Notes,
		CreatedAt:     time.Now(),
	}
	s.consultations[c.ID] = c
	return &c, nil
}

func (s *memStore) ListConsultations(ctx context.Context, f ConsultationFilter) ([]Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []Consultation{}
	for _, c := range s.consultations {
		if c.ClinicID != f.ClinicID || (f.PatientID != nil && c.PatientID != *f.PatientID) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memStore) InsertEvent(ctx context.Context, ev EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failInsertEvent != nil {
		return s.failInsertEvent
	}
	s.events = append(s.events, ev)
	return nil
}
