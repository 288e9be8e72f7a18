package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	v1 "github.com/fieldserve-io/fieldserve/internal/api/v1"
	"github.com/fieldserve-io/fieldserve/internal/config"
	"github.com/fieldserve-io/fieldserve/internal/database"
	"github.com/fieldserve-io/fieldserve/internal/history"
	"github.com/fieldserve-io/fieldserve/internal/middleware"
	"github.com/fieldserve-io/fieldserve/internal/notifications"
	"github.com/fieldserve-io/fieldserve/internal/repository"
	"github.com/fieldserve-io/fieldserve/internal/service"
	"github.com/fieldserve-io/fieldserve/internal/service/request_number"
	"github.com/fieldserve-io/fieldserve/internal/services/escalation"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the escalation scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	app, err := buildApp(cfg, db, logger)
	if err != nil {
		return err
	}

	if err := app.escalation.Start(); err != nil {
		return err
	}
	defer app.escalation.Stop()

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	app.router.RegisterRoutes(engine)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("fieldserve listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Printf("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// app bundles everything serve and sweep assemble from config.
type app struct {
	workflow   *service.WorkflowService
	escalation *escalation.Service
	router     *v1.APIRouter
}

func buildApp(cfg *config.Config, db *sql.DB, logger *log.Logger) (*app, error) {
	tokenRepo := repository.NewTokenRepository(db)
	stateRepo := repository.NewWorkflowStateRepository(db)
	timeEntryRepo := repository.NewTimeEntryRepository(db)
	requestRepo := repository.NewServiceRequestRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	dispatchLogRepo := repository.NewDispatchLogRepository(db)
	employeeRepo := repository.NewEmployeeRepository(db)
	recorder := history.NewRecorder(db)

	hub := notifications.NewHub()

	var email notifications.EmailSender
	if cfg.Email.Enabled {
		email = notifications.NewSMTPSender(&cfg.Email)
	}
	var sms notifications.SMSSender
	if cfg.SMS.Enabled {
		sms = notifications.NewWebhookSMSSender(cfg.SMS)
	}
	var push notifications.PushSender
	if cfg.Push.Enabled {
		push = notifications.NewWebhookPushSender(cfg.Push)
	}

	var deduper notifications.Deduper
	var lease *notifications.RedisDeduper
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisDeduper := notifications.NewRedisDeduper(client)
		deduper = redisDeduper
		lease = redisDeduper
	}

	dispatcher := notifications.NewDispatcher(notifications.Deps{
		Subscriptions: subscriptionRepo,
		Employees:     employeeRepo,
		Log:           dispatchLogRepo,
		Email:         email,
		SMS:           sms,
		Push:          push,
		Hub:           hub,
		Deduper:       deduper,
		Logger:        logger,
	}).WithDedupWindow(cfg.Escalation.SweepInterval)

	tokens := service.NewTokenService(tokenRepo)
	timeEntries := service.NewTimeEntryService(timeEntryRepo)
	numbers := request_number.NewDateBasedGenerator(db, request_number.DateBasedConfig{})

	workflow := service.NewWorkflowService(service.WorkflowDeps{
		States:        stateRepo,
		Requests:      requestRepo,
		Employees:     employeeRepo,
		Tokens:        tokens,
		TimeEntries:   timeEntries,
		History:       recorder,
		Events:        asyncEvents{dispatcher},
		Broadcast:     hub,
		Email:         email,
		Numbers:       numbers,
		BaseURL:       cfg.Server.BaseURL,
		ReminderDelay: cfg.Escalation.ReminderDelay,
		AckTokenTTL:   cfg.Escalation.AckTokenTTL,
		Logger:        logger,
	})

	escOpts := []escalation.Option{
		escalation.WithLogger(logger),
		escalation.WithEventPublisher(asyncEvents{dispatcher}),
		escalation.WithSweepInterval(cfg.Escalation.SweepInterval),
		escalation.WithReminderDelay(cfg.Escalation.ReminderDelay),
		escalation.WithMaxAckRetries(cfg.Escalation.MaxAckRetries),
		escalation.WithBatchLimit(cfg.Escalation.SweepBatchLimit),
	}
	if lease != nil {
		escOpts = append(escOpts, escalation.WithRunLock(lease))
	}
	esc := escalation.New(stateRepo, tokenRepo, employeeRepo, requestRepo, workflow, escOpts...)

	jwtManager := middleware.NewJWTManager(cfg.Auth.JWTSecret, 0)
	router := v1.NewAPIRouter(workflow, esc, recorder, hub, jwtManager, logger)

	return &app{workflow: workflow, escalation: esc, router: router}, nil
}

// asyncEvents decouples notification fan-out from the transitions that
// trigger it: the workflow commit has already happened by the time
// Dispatch is called, and the fan-out runs on its own goroutine with its
// own deadline.
type asyncEvents struct {
	dispatcher *notifications.Dispatcher
}

func (a asyncEvents) Dispatch(_ context.Context, ev notifications.Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		a.dispatcher.Dispatch(ctx, ev)
	}()
}
