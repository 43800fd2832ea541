package main

import (
	"context"
	"log"
	"time"

	"lazla/internal/config"
	"lazla/internal/database"
	"lazla/internal/repository"
)

const staleAfter = 24 * time.Hour

func main() {
	cfg, err := config.LoadDB()
	if err != nil {
		log.Fatalf("level=fatal msg=\"config invalid\" err=%v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	cutoff := time.Now().UTC().Add(-staleAfter)
	cleared, err := repository.NewCustomerRepository(db).ClearStaleOTPs(context.Background(), cutoff)
	if err != nil {
		log.Fatalf("cleanup otp challenges failed: %v", err)
	}

	log.Printf("auth cleanup completed: otp_challenges=%d cutoff=%s", cleared, cutoff.Format(time.RFC3339))
}
