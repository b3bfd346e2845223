//go:build ignore

// Script to create or reset a console operator.
// Run with: go run scripts/create_admin.go -email andres@andres.dev -nombre Andrés -password yourpassword
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andresdev/backstage/internal/config"
	"github.com/andresdev/backstage/internal/domain"
)

func main() {
	email := flag.String("email", "", "Operator email address")
	nombre := flag.String("nombre", "", "Operator display name")
	password := flag.String("password", "", "Operator password (min 10 characters)")
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Println("Usage: go run scripts/create_admin.go -email <email> [-nombre <name>] -password <password>")
		os.Exit(1)
	}
	if !domain.IsValidEmail(domain.NormalizeEmail(*email)) {
		log.Fatalf("Invalid email: %s", *email)
	}
	if len(*password) < 10 {
		log.Fatal("Password must have at least 10 characters")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		dbURL = cfg.Database.ConnectionString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	op, err := domain.NewOperator(*email, *nombre, *password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	// Existing operators keep their id so their sessions stay valid.
	_, err = pool.Exec(ctx, `
		INSERT INTO operators (id, email, nombre, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (email) DO UPDATE
		SET password_hash = EXCLUDED.password_hash,
		    nombre = CASE WHEN EXCLUDED.nombre = '' THEN operators.nombre ELSE EXCLUDED.nombre END,
		    updated_at = EXCLUDED.updated_at
	`, op.ID, op.Email, op.Nombre, op.PasswordHash, op.CreatedAt)
	if err != nil {
		log.Fatalf("Failed to create operator: %v", err)
	}

	fmt.Printf("Operator created/updated: %s\n", op.Email)
}
