package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/clubrun/run-attendance/internal/bus"
	"github.com/clubrun/run-attendance/internal/config"
	"github.com/clubrun/run-attendance/internal/database"
	"github.com/clubrun/run-attendance/internal/handler"
	"github.com/clubrun/run-attendance/internal/repository"
	"github.com/clubrun/run-attendance/internal/router"
	"github.com/clubrun/run-attendance/internal/service"
)

func main() {
	// .env is for local development; in deployment the environment is
	// provided by the orchestrator and the file is absent.
	_ = godotenv.Load()
	cfg := config.Load()

	db, dialect, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.CreateSchema(ctx, db, dialect); err != nil {
		cancel()
		log.Fatalf("schema: %v", err)
	}
	cancel()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis not configured; rate limiting falls back to in-process buckets, response cache disabled")
	}

	// Single-process bus by default; with a broker URL configured the
	// bridge mirrors events so every process sees every tally.
	var events bus.Bus
	memory := bus.NewMemory()
	events = memory
	if bridge := bus.NewAMQPBridge(memory); bridge != nil {
		events = bridge
		go bridge.StartConsumer()
		log.Printf("amqp bridge enabled")
	}

	runs := repository.NewRunRepo(db, dialect)
	attendance := repository.NewAttendanceRepo(db, dialect)
	calendarRepo := repository.NewCalendarRepo(db, dialect)

	codes := service.NewCodeIssuer(runs, cfg.CodeAlphabet, cfg.CodeLen)
	calendar := service.NewCalendarManager(calendarRepo, runs, attendance, codes, events, cfg.Location)
	engine := service.NewRegistrationEngine(runs, attendance, events, calendar, rdb, cfg.SigningKey, cfg.RunnerIDMaxLen)
	overrides := service.NewOverrideService(runs, attendance, events, cfg.RunnerIDMaxLen)
	exporter := service.NewExporter(attendance)

	e := router.New(cfg)
	router.Register(e, cfg, router.Handlers{
		Calendar:   handler.NewCalendarHandler(calendar),
		Register:   handler.NewRegisterHandler(engine),
		Attendance: handler.NewAttendanceHandler(calendar, attendance, runs),
		Override:   handler.NewOverrideHandler(overrides),
		QR:         handler.NewQRHandler(runs, cfg.SigningKey, cfg.QRTTL, cfg.PublicBaseURL),
		Export:     handler.NewExportHandler(exporter),
		Events:     handler.NewEventsHandler(events, calendar, attendance),
	}, rdb)

	log.Printf("listening on %s (env=%s, dialect=%s)", cfg.ListenAddr, cfg.Env, dialect)
	if err := e.Start(cfg.ListenAddr); err != nil {
		log.Fatal(err)
	}
}
