package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-sync/internal/api/http"
	"github.com/spec-kit/ticket-sync/internal/api/http/handlers"
	"github.com/spec-kit/ticket-sync/internal/classifier"
	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/events"
	"github.com/spec-kit/ticket-sync/internal/ingest"
	"github.com/spec-kit/ticket-sync/internal/mailbox"
	"github.com/spec-kit/ticket-sync/internal/mailer"
	"github.com/spec-kit/ticket-sync/internal/observability"
	"github.com/spec-kit/ticket-sync/internal/persistence"
	"github.com/spec-kit/ticket-sync/internal/provision"
	"github.com/spec-kit/ticket-sync/internal/queue"
	"github.com/spec-kit/ticket-sync/internal/remote"
	"github.com/spec-kit/ticket-sync/internal/repository"
	"github.com/spec-kit/ticket-sync/internal/scheduler"
	"github.com/spec-kit/ticket-sync/internal/service"
	ticketsync "github.com/spec-kit/ticket-sync/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	rdb, err := persistence.NewRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	emailTicketRepo := repository.NewEmailTicketRepository(pool)
	groupRepo := repository.NewAssignmentGroupRepository(pool)
	eventRepo := repository.NewSyncEventRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	broker := queue.NewRedisBroker(rdb.Client, logger)
	dispatcher := events.NewInMemoryDispatcher()
	sender := mailer.New(cfg.SMTP)

	engine := ticketsync.NewEngine(ticketsync.Dependencies{
		TicketRepo:      ticketRepo,
		EmailTicketRepo: emailTicketRepo,
		GroupRepo:       groupRepo,
		SyncEventRepo:   eventRepo,
		Broker:          broker,
		Classifier:      classifier.New(cfg.Classifier),
		Remote:          remote.New(cfg.Remote),
		Sender:          sender,
		Dispatcher:      dispatcher,
		Logger:          logger.Named("sync"),
	}, ticketsync.Config{
		StaleRetryAge:   cfg.Queue.StaleRetryAge(),
		ReplyAccountKey: cfg.SMTP.AccountKey,
	})

	notifications := service.NewNotificationService(dispatcher, logger.Named("notify"))
	notifications.RegisterHandlers()

	worker := queue.NewWorker(broker, cfg.Queue.Workers, logger.Named("worker"))
	worker.Register(queue.TaskTicketCreate, func(ctx context.Context, task queue.Task) error {
		return engine.ProcessCreation(ctx, task.TicketID)
	}, queue.RetryPolicy{
		MaxAttempts: cfg.Queue.MaxCreationAttempts,
		BackoffBase: time.Duration(cfg.Queue.BackoffBaseSeconds) * time.Second,
		BackoffCap:  time.Duration(cfg.Queue.BackoffCapSeconds) * time.Second,
	})
	worker.Register(queue.TaskRetrySweep, func(ctx context.Context, task queue.Task) error {
		return engine.RetrySweep(ctx)
	}, queue.RetryPolicy{})
	worker.Register(queue.TaskStatusSweep, func(ctx context.Context, task queue.Task) error {
		return engine.StatusReconcile(ctx)
	}, queue.RetryPolicy{})
	worker.Register(queue.TaskReplyDispatch, func(ctx context.Context, task queue.Task) error {
		return engine.ReplySweep(ctx)
	}, queue.RetryPolicy{})

	tokens := provision.NewTokenManager(cfg.Provision.TokenSecret, cfg.Provision.PasswordSetTTLHours)
	provisioner := provision.NewService(userRepo, sender, tokens, cfg.Provision, logger.Named("provision"))

	gateway := ingest.NewGateway(mailbox.NewIMAPClient(cfg.Mailbox), engine, provisioner, ingest.Config{
		Folder:       cfg.Mailbox.Folder,
		PollInterval: cfg.Scheduler.PollInterval(),
		BackoffCap:   cfg.Scheduler.PollBackoffCap(),
		AccountKey:   cfg.SMTP.AccountKey,
	}, logger.Named("ingest"))

	sched := scheduler.New(cfg.Scheduler, broker, logger.Named("scheduler"))

	var wg sync.WaitGroup
	runAll(ctx, &wg,
		broker.RunPromoter,
		worker.Run,
		sched.Run,
		gateway.Run,
	)

	ticketService := service.NewTicketService(ticketRepo, eventRepo, engine, logger.Named("tickets"))

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, rdb),
		Tickets: handlers.NewTicketsHandler(ticketService),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	cancel()
	wg.Wait()
}

func runAll(ctx context.Context, wg *sync.WaitGroup, fns ...func(context.Context)) {
	for _, fn := range fns {
		wg.Add(1)
		go func(fn func(context.Context)) {
			defer wg.Done()
			fn(ctx)
		}(fn)
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
