// Command to migrate data from JSON files to SQLite database
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"grocery-price/internal/store"
)

const version = "1.0.0"

func main() {
	dataDir := flag.String("dir", "./data", "Data directory containing JSON files")
	dryRun := flag.Bool("dry-run", false, "Show what would be done without making changes")
	force := flag.Bool("force", false, "Force overwrite existing SQLite database")
	versionFlag := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("migrate version %s\n", version)
		return
	}

	fmt.Printf("=== GroceryPrice data migration v%s ===\n\n", version)

	// Verify data directory exists
	if _, err := os.Stat(*dataDir); os.IsNotExist(err) {
		fmt.Printf("error: data directory does not exist: %s\n", *dataDir)
		os.Exit(1)
	}

	dbPath := filepath.Join(*dataDir, "grocery-price.db")

	// Check if SQLite database already exists
	if _, err := os.Stat(dbPath); err == nil && !*force {
		fmt.Printf("error: SQLite database already exists: %s\n", dbPath)
		fmt.Println("use --force to migrate into the existing database, or delete it first")
		os.Exit(1)
	}

	if *dryRun {
		fmt.Println("=== dry run (no data will be modified) ===")
	}

	// Step 1: Backup existing JSON files
	backupDir := *dataDir + "_backup_" + time.Now().Format("20060102_150405")
	if !*dryRun {
		if n, err := backupJSONFiles(*dataDir, backupDir); err != nil {
			fmt.Printf("warning: backup failed: %v\n", err)
		} else {
			fmt.Printf("backed up %d files to %s\n", n, backupDir)
		}
	}

	// Step 2: Load JSON data
	fmt.Println("\nreading JSON files...")
	snap, err := store.ReadSnapshot(*dataDir)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("found %d stores, %d products, %d categories, %d price records, %d jobs, %d subscriptions\n",
		len(snap.Stores), len(snap.Products), len(snap.Categories),
		len(snap.PriceRecords), len(snap.Jobs), len(snap.Subscriptions))

	if *dryRun {
		return
	}

	// Step 3: Create SQLite database and schema
	fmt.Println("\ncreating SQLite database...")
	db, err := store.NewSQLite(*dataDir)
	if err != nil {
		fmt.Printf("error: cannot create SQLite database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	// Step 4: Copy entities, parents first
	ctx := context.Background()
	results := []migration{
		copyAll(ctx, "stores", snap.Stores, db.SaveStore),
		copyAll(ctx, "categories", snap.Categories, db.SaveCategory),
		copyAll(ctx, "products", snap.Products, db.SaveProduct),
		copyAll(ctx, "price records", snap.PriceRecords, db.AppendPriceRecord),
		copyAll(ctx, "jobs", snap.Jobs, db.SaveJob),
		copyAll(ctx, "subscriptions", snap.Subscriptions, db.SaveSubscription),
	}

	// Summary
	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("migration complete")
	fmt.Println(strings.Repeat("=", 50))
	for _, r := range results {
		fmt.Printf("%-14s %d/%d\n", r.name+":", r.copied, r.total)
	}
	fmt.Printf("\ndatabase: %s\n", dbPath)
	fmt.Printf("backup:   %s\n", backupDir)
	fmt.Println("\nnext: start the server with DB_DRIVER=sqlite and check the data")
}

type migration struct {
	name   string
	copied int
	total  int
}

// copyAll saves every item, reporting failures without stopping
func copyAll[T any](ctx context.Context, name string, items []T, save func(context.Context, T) error) migration {
	fmt.Printf("\nmigrating %s...\n", name)
	m := migration{name: name, total: len(items)}
	for i, item := range items {
		if err := save(ctx, item); err != nil {
			fmt.Printf("warning: %s #%d failed: %v\n", name, i, err)
			continue
		}
		m.copied++
	}
	return m
}

// backupJSONFiles copies every JSON file of dataDir into backupDir
func backupJSONFiles(dataDir, backupDir string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.json"))
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return 0, err
	}
	for _, src := range files {
		data, err := os.ReadFile(src)
		if err != nil {
			return 0, err
		}
		if err := os.WriteFile(filepath.Join(backupDir, filepath.Base(src)), data, 0644); err != nil {
			return 0, err
		}
	}
	return len(files), nil
}
