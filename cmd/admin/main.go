// Command admin provisions system admins and prints signing key material.
//
//	admin create-admin -username root -password '...'
//	admin gen-signing-key
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/schoolresults/server/internal/auth"
	"github.com/schoolresults/server/internal/config"
	"github.com/schoolresults/server/internal/db"
	"github.com/schoolresults/server/internal/repo"
)

func main() {
	_ = godotenv.Load(".env")

	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "create-admin":
		createAdmin(os.Args[2:])
	case "gen-signing-key":
		genSigningKey()
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin create-admin -username NAME -password PASS | admin gen-signing-key")
	os.Exit(2)
}

func createAdmin(args []string) {
	fs := flag.NewFlagSet("create-admin", flag.ExitOnError)
	username := fs.String("username", "", "admin username")
	password := fs.String("password", "", "admin password (8-72 characters)")
	_ = fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	svc := auth.NewAdminService(repo.NewAdminRepo(database), repo.NewSessionRepo(database), cfg.AdminSessionTTL)
	admin, err := svc.CreateAdmin(ctx, auth.Credentials{Username: *username, Password: *password})
	if err != nil {
		log.Fatalf("Failed to create admin: %v", err)
	}
	fmt.Printf("created admin %s (%s)\n", admin.Username, admin.ID)
}

func genSigningKey() {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Fatalf("Failed to generate key: %v", err)
	}
	fmt.Printf("LICENSE_SIGNING_KEY=%s\n", base64.StdEncoding.EncodeToString(priv.Seed()))
	fmt.Printf("LICENSE_PUBLIC_KEY=%s\n", base64.StdEncoding.EncodeToString(pub))
}
