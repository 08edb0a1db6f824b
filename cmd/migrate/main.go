package main

import (
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/npezzotti/medchat/internal/database"
)

func main() {
	logger := log.New(os.Stderr, "[medchat-migrate] ", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Println("load .env:", err)
	}

	dsn := flag.String("dsn", os.Getenv("MEDCHAT_DSN"), "postgres connection string")
	flag.Parse()

	if *dsn == "" {
		logger.Fatal("a dsn is required, set -dsn or MEDCHAT_DSN")
	}

	cmd := "up"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	switch cmd {
	case "up":
		if err := database.Migrate(*dsn); err != nil {
			logger.Fatal(err)
		}
		logger.Println("migration up successful")
	case "down":
		steps := 1
		if flag.NArg() > 1 {
			n, err := strconv.Atoi(flag.Arg(1))
			if err != nil || n <= 0 {
				logger.Fatalf("invalid step count %q", flag.Arg(1))
			}
			steps = n
		}
		if err := database.Rollback(*dsn, steps); err != nil {
			logger.Fatal(err)
		}
		logger.Printf("rolled back %d migration(s)", steps)
	case "version":
		version, dirty, err := database.MigrationVersion(*dsn)
		if err != nil {
			logger.Fatal(err)
		}
		logger.Printf("version %d (dirty: %t)", version, dirty)
	default:
		logger.Fatalf("unknown command %q, expected up, down or version", cmd)
	}
}
