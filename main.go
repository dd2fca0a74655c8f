package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/airspace.report/internal/alerting"
	"github.com/banshee-data/airspace.report/internal/api"
	"github.com/banshee-data/airspace.report/internal/auth"
	"github.com/banshee-data/airspace.report/internal/config"
	"github.com/banshee-data/airspace.report/internal/db"
	"github.com/banshee-data/airspace.report/internal/ingest"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	dbPath      = flag.String("db", "airspace.db", "SQLite database path")
	tuningPath  = flag.String("tuning", "", "Optional tuning config JSON file")
	natsURL     = flag.String("nats-url", "", "Optional NATS server URL for event mirroring")
	tokenSecret = flag.String("token-secret", "", "Session token signing secret (or AIRSPACE_TOKEN_SECRET)")
	seed        = flag.Bool("seed", true, "Seed a default operator and region into an empty database")
)

// Seed data for an empty database: one admin account and the Salem
// restricted zone, so the console is usable immediately after first start.
const seedAdminEmail = "admin@example.com"
const seedAdminPassword = "strongpassword"
const seedRegionName = "Salem Restricted Zone"
const seedRegionPolygon = `{"type":"Polygon","coordinates":[[[78.10,11.70],[78.20,11.70],[78.20,11.60],[78.10,11.60],[78.10,11.70]]]}`

func sessionSecret() []byte {
	if *tokenSecret != "" {
		return []byte(*tokenSecret)
	}
	if s := os.Getenv("AIRSPACE_TOKEN_SECRET"); s != "" {
		return []byte(s)
	}
	// Ephemeral secret: sessions will not survive a restart.
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalf("failed to generate session secret: %v", err)
	}
	log.Printf("no token secret configured, using an ephemeral one (%s...)", hex.EncodeToString(buf[:4]))
	return buf
}

func bootstrap(ctx context.Context, database *db.DB) error {
	operators, err := database.CountOperators(ctx)
	if err != nil {
		return err
	}
	if operators == 0 {
		hash, err := auth.HashPassword(seedAdminPassword)
		if err != nil {
			return err
		}
		if _, err := database.CreateOperator(ctx, seedAdminEmail, hash, "admin", time.Now()); err != nil {
			return err
		}
		log.Printf("seeded default admin operator %s", seedAdminEmail)
	}

	regions, err := database.CountRegions(ctx)
	if err != nil {
		return err
	}
	if regions == 0 {
		if _, err := database.CreateRegion(ctx, seedRegionName, seedRegionPolygon, time.Now()); err != nil {
			return err
		}
		log.Printf("seeded restricted region %q", seedRegionName)
	}
	return nil
}

func main() {
	flag.Parse()

	if flag.Arg(0) == "migrate" {
		db.RunMigrateCommand(flag.Args()[1:], *dbPath)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tuning := config.Default()
	if *tuningPath != "" {
		var err error
		tuning, err = config.Load(*tuningPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	}

	database, err := db.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *seed {
		if err := bootstrap(ctx, database); err != nil {
			log.Fatalf("Failed to seed database: %v", err)
		}
	}

	bus := alerting.NewBus(tuning.GetSubscriberBuffer(), tuning.GetDropGrace())

	deduper := alerting.NewDeduper(database, bus, tuning.GetDedupIdleWindow())
	if err := deduper.Load(ctx); err != nil {
		log.Fatalf("Failed to restore alert state: %v", err)
	}
	deduper.Start()
	defer deduper.Stop()

	retention := db.NewRetentionWorker(database, tuning.GetFlightRetention(), tuning.GetAlertRetention())
	retention.Start()
	defer retention.Stop()

	if *natsURL != "" {
		mirror, err := alerting.NewNATSMirror(*natsURL, bus)
		if err != nil {
			log.Fatalf("Failed to connect NATS mirror: %v", err)
		}
		defer mirror.Close()
		log.Printf("mirroring events to NATS at %s", *natsURL)
	}

	pipeline := ingest.New(database, deduper, bus, tuning)
	tokens := auth.NewTokenIssuer(sessionSecret(), 12*time.Hour)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// admin debugging routes (tailsql console, metrics, backup)
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Fatalf("Failed to attach admin routes: %v", err)
		}

		apiMux := api.NewServer(database, pipeline, deduper, bus, tokens).ServeMux()
		mux.Handle("/api/", apiMux)
		mux.Handle("/ws", apiMux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	log.Println("shutdown complete")
}
