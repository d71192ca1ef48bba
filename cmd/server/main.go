package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/wakala/bulkpay/internal/api"
	"github.com/wakala/bulkpay/internal/duplicate"
	"github.com/wakala/bulkpay/internal/lookup"
	"github.com/wakala/bulkpay/internal/notify"
	"github.com/wakala/bulkpay/internal/pipeline"
	"github.com/wakala/bulkpay/internal/refgen"
	"github.com/wakala/bulkpay/internal/repository"
	"github.com/wakala/bulkpay/internal/validation"
)

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	port := envDefault("PORT", "8080")
	dbPath := envDefault("DB_PATH", "bulkpay.db")
	duplicateURL := envDefault("DUPLICATE_CHECK_URL", "http://localhost:9090/api/v1/duplicates/check")
	duplicateTimeout, err := time.ParseDuration(envDefault("DUPLICATE_CHECK_TIMEOUT", "5s"))
	if err != nil {
		log.Fatalf("Invalid DUPLICATE_CHECK_TIMEOUT: %v", err)
	}

	log.Printf("Initializing database at %s", dbPath)
	db, err := repository.InitDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.Close()

	// Seed reference data if the directory tables are empty.
	ctx := context.Background()
	empty, err := repository.ReferenceDataEmpty(ctx, db)
	if err != nil {
		log.Fatalf("Failed to inspect reference data: %v", err)
	}
	if empty {
		log.Println("Reference tables are empty, seeding from testdata...")
		if err := seedReferenceData(ctx, db); err != nil {
			log.Printf("WARNING: Failed to seed reference data: %v", err)
		}
	}

	// Create repositories.
	fileRepo := repository.NewFileRepo(db)
	batchRepo := repository.NewBatchRepo(db)
	rejectedRepo := repository.NewRejectedRepo(db)

	// Create services.
	loader := lookup.NewLoader(db)
	sequences := refgen.NewSQLiteSequence(db, "bank_ref")
	refs := refgen.NewGenerator(
		envDefault("BATCH_REF_PREFIX", "GCB"),
		envDefault("CHILD_REF_PREFIX", "GCC"),
		envDefault("ENTITY_CODE", "W"),
	)
	chain := validation.NewChain()
	checker := duplicate.NewHTTPChecker(duplicateURL, duplicateTimeout)
	reconciler := duplicate.NewCoordinator(fileRepo, batchRepo, rejectedRepo, checker)
	notifier := notify.NewLogNotifier()

	orchestrator := pipeline.NewOrchestrator(
		db, fileRepo, batchRepo, rejectedRepo,
		loader, sequences, refs, chain, reconciler, notifier,
	)

	// Create router.
	router := api.NewRouter(fileRepo, batchRepo, rejectedRepo, orchestrator)

	log.Printf("Wakala Bulk Payment Ingestion Service")
	log.Printf("Listening on http://localhost:%s", port)
	log.Printf("API base: http://localhost:%s/api/v1", port)
	log.Printf("")
	log.Printf("Endpoints:")
	log.Printf("  POST   /api/v1/files/ingest")
	log.Printf("  GET    /api/v1/files")
	log.Printf("  GET    /api/v1/files/{ref}")
	log.Printf("  GET    /api/v1/files/{ref}/rejections")
	log.Printf("  GET    /api/v1/batches/{ref}/records")
	log.Printf("  GET    /api/v1/dashboard")

	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func seedReferenceData(ctx context.Context, db *sql.DB) error {
	// Try multiple possible locations for testdata.
	candidates := []string{
		"testdata/reference_data.json",
		filepath.Join(".", "testdata", "reference_data.json"),
	}

	// Also try to find relative to the executable.
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "testdata", "reference_data.json"),
			filepath.Join(dir, "..", "..", "testdata", "reference_data.json"),
		)
	}

	var data []byte
	var loadErr error
	for _, path := range candidates {
		data, loadErr = os.ReadFile(path)
		if loadErr == nil {
			log.Printf("Loaded reference data from %s", path)
			break
		}
	}
	if loadErr != nil {
		return fmt.Errorf("could not find reference_data.json in any candidate path: %w", loadErr)
	}

	return repository.SeedReferenceData(ctx, db, data)
}
