package main // Entry point package

import (
    "context"   // context for stopping the sweeper on shutdown
    "log"       // Logging library
    "os"        // signal wiring
    "os/signal" // notify on interrupt
    "syscall"   // SIGTERM constant

    "github.com/joho/godotenv"    // .env loading for local development
    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/iliyamo/event-ticket-queue/internal/clock"      // injectable time source
    "github.com/iliyamo/event-ticket-queue/internal/config"     // internal config loader
    "github.com/iliyamo/event-ticket-queue/internal/database"   // MySQL pool constructor
    "github.com/iliyamo/event-ticket-queue/internal/handler"    // HTTP handlers
    "github.com/iliyamo/event-ticket-queue/internal/queue"      // AMQP publisher and audit consumer
    "github.com/iliyamo/event-ticket-queue/internal/repository" // persistence layer
    "github.com/iliyamo/event-ticket-queue/internal/router"     // route registration
    "github.com/iliyamo/event-ticket-queue/internal/service"    // admission core and sweeper
)

func main() {
    _ = godotenv.Load() // best effort; real deployments set env directly
    cfg := config.Load()

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatalf("database: %v", err)
    }
    defer db.Close()

    // Redis is optional: a nil client disables join rate limiting.
    rdb := config.NewRedisClient()
    if rdb == nil {
        log.Printf("redis unavailable; join rate limiting disabled")
    }

    events := repository.NewEventRepo(db)
    waitlist := repository.NewWaitlistRepo(db)
    tickets := repository.NewTicketRepo(db)

    svc := service.NewAdmissionService(events, waitlist, tickets, queue.NewPublisher(), clock.NewSystem(), cfg.OfferWindow)

    // The sweeper stops when ctx is cancelled; each pass commits one
    // entry transition at a time, so shutdown mid-sweep is safe.
    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()
    go service.NewSweeper(svc, cfg.SweepInterval).Run(ctx)

    // Audit consumer appends admission events to logs/admission.log.
    go func() {
        if err := queue.StartAdmissionConsumer(); err != nil {
            log.Printf("admission consumer stopped: %v", err)
        }
    }()

    e := echo.New()
    admissions := handler.NewAdmissionHandler(svc)
    catalog := handler.NewEventHandler(svc)
    router.RegisterRoutes(e, catalog)
    router.RegisterAdmission(e, admissions, catalog, cfg.JWTSecret, config.LoadRateLimitConfig(), rdb)

    addr := ":" + cfg.Port                                // Address string with port
    log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

    if err := e.Start(addr); err != nil { // Start HTTP server
        log.Fatal(err) // Log and exit if server fails
    }
}
