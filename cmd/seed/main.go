package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/identity"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

const (
	clinicCount       = 3
	doctorsPerClinic  = 8
	patientsPerClinic = 2000
	patientBatchSize  = 500
	demoTokenLifetime = 24 * time.Hour
)

type seededClinic struct {
	id           uuid.UUID
	name         string
	admin        appointment.Actor
	receptionist appointment.Actor
	doctor       appointment.Actor
	patient      appointment.Actor
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel).With("service", "seed")
	logger.Info("seed starting")

	if err := db.MigrateUp(cfg.PostgresDSN); err != nil {
		logger.Error("apply migrations", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	var clinics []seededClinic
	for i := 0; i < clinicCount; i++ {
		c, err := seedClinic(ctx, pool, faker, logger)
		if err != nil {
			logger.Error("seed clinic", "error", err)
			os.Exit(1)
		}
		clinics = append(clinics, c)
	}

	now := time.Now()
	fmt.Println()
	fmt.Println("Demo bearer tokens (valid 24h):")
	for _, c := range clinics {
		fmt.Printf("\nclinic %s (%s)\n", c.name, c.id)
		for _, actor := range []appointment.Actor{c.admin, c.receptionist, c.doctor, c.patient} {
			token, err := identity.Issue(cfg.JWTSecret, actor, demoTokenLifetime, now)
			if err != nil {
				logger.Error("issue token", "error", err)
				os.Exit(1)
			}
			fmt.Printf("  %-12s %s\n", actor.Role, token)
		}
	}

	logger.Info("seed complete", "clinics", len(clinics))
}

func seedClinic(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, logger *logging.Logger) (seededClinic, error) {
	c := seededClinic{
		id:   uuid.New(),
		name: faker.Company() + " Clinic",
	}
	logger.Info("seeding clinic", "clinic_id", c.id, "name", c.name)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return c, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO clinics (id, name, created_at, updated_at)
		VALUES ($1, $2, now(), now())
	`, c.id, c.name)
	if err != nil {
		return c, fmt.Errorf("insert clinic: %w", err)
	}

	addUser := func(role appointment.Role) (appointment.Actor, error) {
		actor := appointment.Actor{
			UserID:   uuid.New(),
			Role:     role,
			ClinicID: c.id,
			Email:    uniqueEmail(faker),
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, clinic_id, name, email, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, actor.UserID, c.id, faker.Name(), actor.Email, string(role))
		return actor, err
	}

	if c.admin, err = addUser(appointment.RoleAdmin); err != nil {
		return c, fmt.Errorf("insert admin: %w", err)
	}
	if c.receptionist, err = addUser(appointment.RoleReceptionist); err != nil {
		return c, fmt.Errorf("insert receptionist: %w", err)
	}
	for i := 0; i < doctorsPerClinic; i++ {
		doctor, err := addUser(appointment.RoleDoctor)
		if err != nil {
			return c, fmt.Errorf("insert doctor: %w", err)
		}
		if i == 0 {
			c.doctor = doctor
		}
	}
	if c.patient, err = addUser(appointment.RolePatient); err != nil {
		return c, fmt.Errorf("insert patient user: %w", err)
	}

	// the patient user's own record, matched by email
	_, err = tx.Exec(ctx, `
		INSERT INTO patients (id, clinic_id, name, email, age, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
	`, uuid.New(), c.id, faker.Name(), c.patient.Email, faker.Number(18, 90))
	if err != nil {
		return c, fmt.Errorf("insert own patient record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return c, err
	}

	return c, seedPatients(ctx, pool, faker, c.id, patientsPerClinic, logger)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, clinicID uuid.UUID, count int, logger *logging.Logger) error {
	for offset := 0; offset < count; offset += patientBatchSize {
		end := offset + patientBatchSize
		if end > count {
			end = count
		}

		rows := make([][]any, 0, end-offset)
		for i := offset; i < end; i++ {
			email := uniqueEmail(faker)
			rows = append(rows, []any{uuid.New(), clinicID, faker.Name(), &email, faker.Number(0, 99)})
		}

		_, err := pool.CopyFrom(ctx,
			pgx.Identifier{"patients"},
			[]string{"id", "clinic_id", "name", "email", "age"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy patients: %w", err)
		}

		logger.Info("patients seeded", "clinic_id", clinicID, "done", end, "total", count)
	}
	return nil
}

// uniqueEmail avoids collisions on users.email across runs.
func uniqueEmail(faker *gofakeit.Faker) string {
	local := strings.ToLower(faker.Username())
	return fmt.Sprintf("%s.%s@%s", local, uuid.NewString()[:8], faker.DomainName())
}
