//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/suite"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/oksasatya/account-lifecycle/internal/domain/entity"
	"github.com/oksasatya/account-lifecycle/internal/domain/repository"
	"github.com/oksasatya/account-lifecycle/internal/infrastructure/postgres"
)

type RepositorySuite struct {
	suite.Suite
	ctx       context.Context
	container *tcpostgres.PostgresContainer
	pool      *pgxpool.Pool
	repo      *postgres.AccountRepository
	ledger    *postgres.NoticeLedger
	now       time.Time
}

func TestRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupSuite() {
	s.ctx = context.Background()
	s.now = time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC)

	container, err := tcpostgres.Run(s.ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("lifecycle"),
		tcpostgres.WithUsername("lifecycle"),
		tcpostgres.WithPassword("lifecycle"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)
	s.Require().NoError(migrateUp(dsn))

	s.pool, err = postgres.NewPool(s.ctx, dsn, postgres.PoolOptions{TimeZone: "UTC", ApplicationName: "lifecycle-test"})
	s.Require().NoError(err)
	s.repo = postgres.NewAccountRepository(s.pool, time.UTC)
	s.ledger = postgres.NewNoticeLedger(s.pool)
}

func (s *RepositorySuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *RepositorySuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, `TRUNCATE accounts, withdrawal_history CASCADE`)
	s.Require().NoError(err)
}

func migrateUp(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	driver, err := pgmigrate.WithInstance(db, &pgmigrate.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://../../../db/migrations", "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func at(t time.Time) *time.Time { return &t }

func (s *RepositorySuite) insert(a entity.Account) string {
	a.ID = uuid.NewString()
	a.Email = a.ID + "@example.com"
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now.AddDate(-1, 0, 0)
	}
	if a.StatusChangedAt.IsZero() {
		a.StatusChangedAt = a.CreatedAt
	}
	_, err := s.pool.Exec(s.ctx, `INSERT INTO accounts
		(id, email, nickname, profile_image, status, created_at, updated_at, status_changed_at, last_login_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7, $8, $9)`,
		a.ID, a.Email, a.Nickname, a.ProfileImage, string(a.Status), a.CreatedAt, a.StatusChangedAt, a.LastLoginAt, a.DeletedAt)
	s.Require().NoError(err)
	return a.ID
}

func idsOf(accounts []entity.Account) []string {
	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.ID)
	}
	return out
}

func (s *RepositorySuite) TestFindersFilterByStatusAndThreshold() {
	oldPending := s.insert(entity.Account{Status: entity.StatusPending, CreatedAt: s.now.Add(-48 * time.Hour)})
	s.insert(entity.Account{Status: entity.StatusPending, CreatedAt: s.now})
	idle := s.insert(entity.Account{Status: entity.StatusActive, LastLoginAt: at(s.now.AddDate(-1, 0, 0))})
	s.insert(entity.Account{Status: entity.StatusActive})
	dormant := s.insert(entity.Account{Status: entity.StatusDormant, StatusChangedAt: s.now.AddDate(-2, 0, 0)})
	deleted := s.insert(entity.Account{Status: entity.StatusDeleted, DeletedAt: at(s.now.AddDate(-4, 0, 0))})

	pending, err := s.repo.FindPending(s.ctx, s.now.Add(-24*time.Hour))
	s.Require().NoError(err)
	s.Equal([]string{oldPending}, idsOf(pending))

	active, err := s.repo.FindActive(s.ctx, s.now.AddDate(0, -6, 0))
	s.Require().NoError(err)
	s.Equal([]string{idle}, idsOf(active), "accounts that never logged in are not candidates")

	dormants, err := s.repo.FindDormant(s.ctx, s.now.AddDate(-1, 0, 0))
	s.Require().NoError(err)
	s.Equal([]string{dormant}, idsOf(dormants))

	gone, err := s.repo.FindDeleted(s.ctx, s.now.AddDate(-3, 0, 0))
	s.Require().NoError(err)
	s.Require().Len(gone, 1)
	s.Equal(deleted, gone[0].ID)
	s.True(gone[0].DeletedAt.Equal(s.now.AddDate(-4, 0, 0)))
}

func (s *RepositorySuite) TestBulkDeleteReturnsRemovedIDs() {
	pending := s.insert(entity.Account{Status: entity.StatusPending})
	active := s.insert(entity.Account{Status: entity.StatusActive})

	removed, err := s.repo.BulkDelete(s.ctx, []string{pending, active, uuid.NewString()}, entity.StatusPending)
	s.Require().NoError(err)
	s.Equal([]string{pending}, removed)

	_, err = s.repo.GetByID(s.ctx, pending)
	s.ErrorIs(err, repository.ErrNotFound)
	_, err = s.repo.GetByID(s.ctx, active)
	s.NoError(err)
}

func (s *RepositorySuite) TestBulkSaveReturnsWrittenIDs() {
	active := s.insert(entity.Account{Status: entity.StatusActive, LastLoginAt: at(s.now.AddDate(-1, 0, 0))})
	pending := s.insert(entity.Account{Status: entity.StatusPending})

	a, err := s.repo.GetByID(s.ctx, active)
	s.Require().NoError(err)
	p, err := s.repo.GetByID(s.ctx, pending)
	s.Require().NoError(err)
	demoted, stale := *a, *p
	demoted.Status, demoted.StatusChangedAt = entity.StatusDormant, s.now
	stale.Status = entity.StatusDormant

	written, err := s.repo.BulkSave(s.ctx, []entity.AccountUpdate{
		{Account: demoted, ExpectedStatus: entity.StatusActive},
		{Account: stale, ExpectedStatus: entity.StatusActive},
	})
	s.Require().NoError(err)
	s.Equal([]string{active}, written)

	got, err := s.repo.GetByID(s.ctx, active)
	s.Require().NoError(err)
	s.Equal(entity.StatusDormant, got.Status)
	got, err = s.repo.GetByID(s.ctx, pending)
	s.Require().NoError(err)
	s.Equal(entity.StatusPending, got.Status)
}

func (s *RepositorySuite) TestNoticeCandidatesHonourLedger() {
	lastLogin := s.now.AddDate(0, -5, -2)
	recent := s.insert(entity.Account{Status: entity.StatusActive, LastLoginAt: at(lastLogin)})
	old := s.insert(entity.Account{Status: entity.StatusActive, LastLoginAt: at(lastLogin)})
	noticed := s.now.AddDate(0, -5, -10)
	loggedInAfter := s.insert(entity.Account{Status: entity.StatusActive, LastLoginAt: at(noticed.Add(3 * time.Hour))})
	fresh := s.insert(entity.Account{Status: entity.StatusActive, LastLoginAt: at(lastLogin)})

	s.Require().NoError(s.ledger.Record(s.ctx, recent, s.now.AddDate(0, 0, -3)))
	s.Require().NoError(s.ledger.Record(s.ctx, old, s.now.AddDate(0, -2, 0)))
	s.Require().NoError(s.ledger.Record(s.ctx, loggedInAfter, noticed))

	got, err := s.repo.FindDormancyNoticeCandidates(s.ctx, s.now.AddDate(0, -5, 0), s.now.AddDate(0, -1, 0))
	s.Require().NoError(err)
	s.ElementsMatch([]string{old, loggedInAfter, fresh}, idsOf(got))

	got, err = s.repo.FindDormancyNoticeCandidates(s.ctx, s.now.AddDate(0, -5, 0), s.now.AddDate(-1, 0, 0))
	s.Require().NoError(err)
	s.ElementsMatch([]string{loggedInAfter, fresh}, idsOf(got),
		"a notice older than the last login never suppresses a new one")
}

func (s *RepositorySuite) TestLedgerRecordIsIdempotentPerDay() {
	id := s.insert(entity.Account{Status: entity.StatusActive, LastLoginAt: at(s.now.AddDate(-1, 0, 0))})
	first := s.now
	s.Require().NoError(s.ledger.Record(s.ctx, id, first))
	s.Require().NoError(s.ledger.Record(s.ctx, id, first.Add(5*time.Hour)))

	var rows int
	s.Require().NoError(s.pool.QueryRow(s.ctx, `SELECT count(*) FROM dormancy_notice_log WHERE account_id = $1`, id).Scan(&rows))
	s.Equal(1, rows)

	ok, err := s.ledger.Exists(s.ctx, id, first)
	s.Require().NoError(err)
	s.True(ok)
	ok, err = s.ledger.Exists(s.ctx, id, first.Add(time.Second))
	s.Require().NoError(err)
	s.False(ok, "the first attempt of the day is the one kept")

	s.Require().NoError(s.ledger.Record(s.ctx, id, first.AddDate(0, 0, 1)))
	s.Require().NoError(s.pool.QueryRow(s.ctx, `SELECT count(*) FROM dormancy_notice_log WHERE account_id = $1`, id).Scan(&rows))
	s.Equal(2, rows)
}

func (s *RepositorySuite) TestLedgerRowsGoWithPurgedAccount() {
	id := s.insert(entity.Account{Status: entity.StatusDeleted, DeletedAt: at(s.now.AddDate(-4, 0, 0))})
	s.Require().NoError(s.ledger.Record(s.ctx, id, s.now.AddDate(-5, 0, 0)))

	removed, err := s.repo.BulkDelete(s.ctx, []string{id}, entity.StatusDeleted)
	s.Require().NoError(err)
	s.Equal([]string{id}, removed)

	ok, err := s.ledger.Exists(s.ctx, id, time.Time{})
	s.Require().NoError(err)
	s.False(ok)
}
