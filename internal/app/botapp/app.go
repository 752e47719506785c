package botapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ivankudzin/guardbot/internal/config"
	s3infra "github.com/ivankudzin/guardbot/internal/infra/s3"
	tginfra "github.com/ivankudzin/guardbot/internal/infra/telegram"
	unbanjob "github.com/ivankudzin/guardbot/internal/jobs/unban"
	pgrepo "github.com/ivankudzin/guardbot/internal/repo/postgres"
	redrepo "github.com/ivankudzin/guardbot/internal/repo/redis"
	celebsvc "github.com/ivankudzin/guardbot/internal/services/celebration"
	chatssvc "github.com/ivankudzin/guardbot/internal/services/chats"
	modsvc "github.com/ivankudzin/guardbot/internal/services/moderation"
	reviewsvc "github.com/ivankudzin/guardbot/internal/services/reviews"
	httptransport "github.com/ivankudzin/guardbot/internal/transport/http"
)

type App struct {
	cfg      config.Config
	logger   *zap.Logger
	postgres *pgxpool.Pool
	redis    *goredis.Client
	bot      *tginfra.Bot
	server   *http.Server

	membersRepo *pgrepo.MembersRepo

	chatsService      *chatssvc.Service
	moderationService *modsvc.Service
	reviewsService    *reviewsvc.Service
	unbanWorker       *unbanjob.Worker
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	bot, err := tginfra.NewBot(cfg.Telegram.Token, cfg.Telegram.PollTimeoutSeconds)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	if bot.DryRun() {
		logger.Warn("BOT_TOKEN is empty, telegram calls run in dry-run mode")
	}

	membersRepo := pgrepo.NewMembersRepo(pool)
	chatsRepo := pgrepo.NewChatsRepo(pool)
	reviewsRepo := pgrepo.NewReviewsRepo(pool)
	celebrationRepo := pgrepo.NewCelebrationRepo(pool)
	callbackRepo := redrepo.NewCallbackRepo(redisClient, cfg.Moderation.CallbackTTL)
	jobsRepo := redrepo.NewJobsRepo(redisClient)

	chatsService := chatssvc.NewService(chatsRepo)
	moderationService := modsvc.NewService(
		chatsService,
		bot,
		membersRepo,
		jobsRepo,
		modsvc.Config{WarningTTL: cfg.Moderation.WarningTTL},
		logger,
	)

	var assets reviewsvc.AssetDrawer
	signer, err := s3infra.NewSigner(cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket, cfg.S3.UseSSL)
	if err != nil {
		logger.Warn("s3 signer unavailable, celebrations disabled", zap.Error(err))
	} else {
		assets = celebsvc.NewService(celebrationRepo, signer, time.Hour, logger)
	}

	reviewsService := reviewsvc.NewService(
		reviewsRepo,
		callbackRepo,
		moderationService,
		bot,
		assets,
		reviewsvc.Config{TempBanDuration: cfg.Moderation.DefaultTempBan},
		logger,
	)

	unbanWorker := unbanjob.NewWorker(jobsRepo, moderationService, cfg.Scheduler.PollInterval, logger)

	router := httptransport.NewRouter(httptransport.Dependencies{
		Moderation:   moderationService,
		Verifier:     httptransport.NewTokenVerifier(cfg.HTTP.JWTSecret),
		ServiceToken: cfg.HTTP.ServiceToken,
		Logger:       logger,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:               cfg,
		logger:            logger,
		postgres:          pool,
		redis:             redisClient,
		bot:               bot,
		server:            server,
		membersRepo:       membersRepo,
		chatsService:      chatsService,
		moderationService: moderationService,
		reviewsService:    reviewsService,
		unbanWorker:       unbanWorker,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("bot app started", zap.String("http_addr", a.cfg.HTTP.Addr))

	errCh := make(chan error, 3)

	go func() {
		errCh <- a.bot.Listen(ctx, tginfra.Handlers{
			OnCommand:  a.handleCommand,
			OnCallback: a.handleCallback,
			OnMember:   a.handleMember,
		})
	}()

	go func() {
		errCh <- a.unbanWorker.Run(ctx)
	}()

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	for {
		select {
		case <-ctx.Done():
			_ = a.server.Shutdown(context.Background())
			a.logger.Info("bot app stopped")
			return nil
		case err := <-errCh:
			if err == nil || errors.Is(err, context.Canceled) {
				continue
			}
			return err
		}
	}
}

func (a *App) Close() {
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
