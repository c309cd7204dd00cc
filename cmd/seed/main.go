package main

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/oksasatya/account-lifecycle/config"
	"github.com/oksasatya/account-lifecycle/internal/domain/entity"
	"github.com/oksasatya/account-lifecycle/pkg/helpers"
)

type seedAccount struct {
	email     string
	nickname  string
	status    entity.Status
	createdAt time.Time
	changedAt time.Time
	lastLogin *time.Time
	deletedAt *time.Time
}

func ago(years, months, days int) time.Time {
	return time.Now().AddDate(-years, -months, -days)
}

func ptr(t time.Time) *time.Time { return &t }

// accounts lands at least one record inside the reach of every rule, plus
// fresh records that no rule should touch.
func accounts(noticeDue time.Time) []seedAccount {
	return []seedAccount{
		{email: "pending.fresh@example.com", nickname: "Fresh Signup", status: entity.StatusPending, createdAt: time.Now(), changedAt: time.Now()},
		{email: "pending.stale@example.com", nickname: "Stale Signup", status: entity.StatusPending, createdAt: ago(0, 0, 3), changedAt: ago(0, 0, 3)},
		{email: "active.recent@example.com", nickname: "Recent User", status: entity.StatusActive, createdAt: ago(1, 0, 0), changedAt: ago(1, 0, 0), lastLogin: ptr(ago(0, 0, 2))},
		{email: "active.notice@example.com", nickname: "Quiet User", status: entity.StatusActive, createdAt: ago(1, 0, 0), changedAt: ago(1, 0, 0), lastLogin: ptr(noticeDue)},
		{email: "active.idle@example.com", nickname: "Idle User", status: entity.StatusActive, createdAt: ago(2, 0, 0), changedAt: ago(2, 0, 0), lastLogin: ptr(ago(0, 7, 0))},
		{email: "dormant.recent@example.com", nickname: "Sleeping User", status: entity.StatusDormant, createdAt: ago(2, 0, 0), changedAt: ago(0, 1, 0), lastLogin: ptr(ago(0, 7, 0))},
		{email: "dormant.expired@example.com", nickname: "Gone User", status: entity.StatusDormant, createdAt: ago(3, 0, 0), changedAt: ago(1, 1, 0), lastLogin: ptr(ago(1, 7, 0))},
		{email: "deleted.recent@example.com", nickname: "Left User", status: entity.StatusDeleted, createdAt: ago(2, 0, 0), changedAt: ago(0, 0, 40), deletedAt: ptr(ago(0, 0, 40))},
		{email: "deleted.old@example.com", nickname: "Ancient User", status: entity.StatusDeleted, createdAt: ago(5, 0, 0), changedAt: ago(3, 1, 0), deletedAt: ptr(ago(3, 1, 0))},
	}
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := sql.Open("pgx", cfg.PostgresDSN())
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	password := "password123"
	hash, err := helpers.HashPassword(password, bcrypt.MinCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	// idle just past the notice threshold, still short of dormancy
	noticeDue := cfg.Policy.NoticeAfter.Before(time.Now()).AddDate(0, 0, -1)
	for _, a := range accounts(noticeDue) {
		var id string
		err := db.QueryRow(`
			INSERT INTO accounts (email, nickname, password_hash, status, created_at, updated_at, status_changed_at, last_login_at, deleted_at)
			VALUES ($1, $2, $3, $4, $5, $5, $6, $7, $8)
			ON CONFLICT (email) DO UPDATE SET
				nickname = EXCLUDED.nickname, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at,
				status_changed_at = EXCLUDED.status_changed_at, last_login_at = EXCLUDED.last_login_at,
				deleted_at = EXCLUDED.deleted_at, anonymized = false, anonymized_at = NULL
			RETURNING id
		`, a.email, a.nickname, hash, string(a.status), a.createdAt, a.changedAt, a.lastLogin, a.deletedAt).Scan(&id)
		if err != nil {
			log.Fatalf("failed to seed %s: %v", a.email, err)
		}
		fmt.Printf("seeded account: id=%s email=%s status=%s\n", id, a.email, a.status)
	}
	fmt.Printf("all seeded accounts use password=%s\n", password)

	jwt := helpers.NewJWTManager(cfg.AdminJWTSecret, cfg.AdminJWTTTL, cfg.AdminJWTIssuer)
	token, exp, err := jwt.GenerateToken("seed-admin", helpers.RoleAdmin)
	if err != nil {
		log.Fatalf("failed to issue admin token: %v", err)
	}
	fmt.Printf("admin token (expires %s):\n%s\n", exp.Format(time.RFC3339), token)
}
