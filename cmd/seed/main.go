package main

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"

	"lazla/internal/config"
	"lazla/internal/database"
	"lazla/internal/domain"
	"lazla/internal/modules/auth"
	"lazla/internal/pkg/password"
	"lazla/internal/pkg/validator"
	"lazla/internal/repository"
)

// seed creates the first admin staff account. Running it again is a no-op.
func main() {
	cfg, err := config.LoadDB()
	if err != nil {
		log.Fatalf("level=fatal msg=\"config invalid\" err=%v", err)
	}

	req := auth.RegisterStaffRequest{
		Username: strings.TrimSpace(os.Getenv("SEED_ADMIN_USERNAME")),
		Email:    strings.TrimSpace(os.Getenv("SEED_ADMIN_EMAIL")),
		Password: os.Getenv("SEED_ADMIN_PASSWORD"),
		Role:     string(domain.StaffRoleAdmin),
	}
	if fields := validator.Validate(&req); fields != nil {
		log.Fatalf("level=fatal msg=\"SEED_ADMIN_USERNAME, SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD (min 8) are required\" fields=%v", fields)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal msg=\"db connect failed\" err=%v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("level=fatal msg=\"db migrate failed\" err=%v", err)
	}

	staff := auth.NewStaffService(repository.NewStaffRepository(db), auth.Deps{
		Hasher:  password.NewHasher(cfg.BcryptRounds),
		Loggerf: log.Printf,
	})

	account, err := staff.RegisterStaff(context.Background(), req)
	switch {
	case errors.Is(err, auth.ErrEmailTaken), errors.Is(err, auth.ErrUsernameTaken), errors.Is(err, auth.ErrConflict):
		log.Printf("level=info msg=\"admin already exists, nothing to do\" email=%s", req.Email)
	case err != nil:
		log.Fatalf("level=fatal msg=\"seed failed\" err=%v", err)
	default:
		log.Printf("level=info msg=\"admin created\" id=%d username=%s", account.ID, account.Username)
	}
}
