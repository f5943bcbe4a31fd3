package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"aerotool/internal/repository/sqlite"
	"aerotool/internal/service/persistence"
)

// migrate creates the schema and replays recognition operations saved as
// JSON files (one payload per file) into the store.
func main() {
	dir := flag.String("payloads", "", "Directory containing operation JSON files")
	dbPath := flag.String("db", filepath.Join("static", "SQLite", "ToolsAI.db"), "Database path")
	flag.Parse()

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	fmt.Printf("Schema ready in %s\n", *dbPath)

	if *dir == "" {
		return
	}

	files, err := os.ReadDir(*dir)
	if err != nil {
		log.Fatalf("Failed to read payload directory: %v", err)
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		if !f.IsDir() && strings.EqualFold(filepath.Ext(f.Name()), ".json") {
			names = append(names, f.Name())
		}
	}
	sort.Strings(names)

	repo := sqlite.NewOperationRepository(db)
	stored, skipped := 0, 0
	for _, name := range names {
		body, err := os.ReadFile(filepath.Join(*dir, name))
		if err != nil {
			log.Printf("Skipping %s: %v", name, err)
			skipped++
			continue
		}

		op, err := persistence.Decode(body)
		if err != nil {
			log.Printf("Skipping %s: %v", name, err)
			skipped++
			continue
		}

		id, err := repo.SaveOperation(context.Background(), op)
		if err != nil {
			log.Fatalf("Failed to store %s: %v", name, err)
		}
		stored++
		log.Printf("Stored %s as operation %d", name, id)
	}

	fmt.Printf("Replayed %d operation(s)", stored)
	if skipped > 0 {
		fmt.Printf(", skipped %d file(s)", skipped)
	}
	fmt.Println()
}
