package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/fleetadmin/fleetadmin/domain/entity"
	"github.com/fleetadmin/fleetadmin/infrastructure/adapter/postgres"
	"github.com/fleetadmin/fleetadmin/infrastructure/http/validator"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/password"
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	_ = godotenv.Load()

	username := flag.String("username", getEnvOrDefault("ADMIN_USERNAME", "admin"), "login name")
	userPassword := flag.String("password", getEnvOrDefault("ADMIN_PASSWORD", "@adminbkn"), "plain-text password")
	name := flag.String("name", getEnvOrDefault("ADMIN_NAME", "Administrator"), "display name")
	role := flag.String("role", entity.RoleAdmin, "role: admin or user")
	flag.Parse()

	ctx := context.Background()

	*username = strings.TrimSpace(*username)
	if !validator.ValidateUsername(*username) {
		log.Fatalf("Invalid username %q", *username)
	}
	if !validator.ValidatePassword(*userPassword) {
		log.Fatalf("Password must be at least %d characters", validator.MinPasswordLength)
	}
	if !validator.ValidateRequired(*name) {
		log.Fatal("Name is required")
	}
	if *role != entity.RoleAdmin && *role != entity.RoleUser {
		log.Fatalf("Unknown role %q", *role)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}
	cost, err := strconv.Atoi(getEnvOrDefault("BCRYPT_COST", "10"))
	if err != nil {
		log.Fatalf("Invalid BCRYPT_COST: %v", err)
	}

	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	userRepo := postgres.NewUserRepositoryAdapter(db)

	hashedPassword, err := password.NewBcryptPasswordService(cost).HashPassword(*userPassword)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	user := entity.NewUser(uuid.NewString(), *username, *name, hashedPassword, *role)
	if err := userRepo.Upsert(ctx, user); err != nil {
		log.Fatalf("Failed to save user: %v", err)
	}

	fmt.Printf("User saved\n")
	fmt.Printf("  Username: %s\n", user.Email)
	fmt.Printf("  Name:     %s\n", user.Name)
	fmt.Printf("  Role:     %s\n", user.Role)
	fmt.Printf("  ID:       %s\n", user.ID)
}
