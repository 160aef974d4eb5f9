package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"cloud.google.com/go/spanner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/adapters"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/config"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/contracts"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/domain"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/lock"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/metrics"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/repo"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/usecases/activate_subscription"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/usecases/cancel_subscription"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/usecases/complete_enrollment_step"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/usecases/create_subscription"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/usecases/process_payment"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/usecases/start_enrollment"
)

// Service bundles the enrollment use cases.
type Service struct {
	CreateSubscription     *create_subscription.Interactor
	StartEnrollment        *start_enrollment.Interactor
	CompleteEnrollmentStep *complete_enrollment_step.Interactor
	ProcessPayment         *process_payment.Interactor
	ActivateSubscription   *activate_subscription.Interactor
	CancelSubscription     *cancel_subscription.Interactor

	Metrics *metrics.Metrics

	closers []func() error
}

// Dependencies are the collaborators shared by every use case.
type Dependencies struct {
	Repo    contracts.SubscriptionRepository
	Wallet  contracts.WalletClient
	Locker  contracts.SubscriptionLocker
	Clock   domain.Clock
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Assemble wires the use cases on top of deps using the business rules,
// default currency and lock TTL from cfg.
func Assemble(cfg config.Config, deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	factory := domain.NewHealthcareSubscriptionFactory(deps.Clock, cfg.Rules,
		domain.WithSubscriptionOptions(domain.WithCurrency(cfg.DefaultCurrency)))
	ttl := cfg.Lock.TTL

	return &Service{
		CreateSubscription:     create_subscription.NewInteractor(deps.Repo, factory, logger),
		StartEnrollment:        start_enrollment.NewInteractor(deps.Repo, deps.Locker, ttl, deps.Metrics, logger),
		CompleteEnrollmentStep: complete_enrollment_step.NewInteractor(deps.Repo, deps.Wallet, deps.Locker, ttl, deps.Metrics, logger),
		ProcessPayment:         process_payment.NewInteractor(deps.Repo, deps.Wallet, deps.Locker, ttl, deps.Metrics, logger),
		ActivateSubscription:   activate_subscription.NewInteractor(deps.Repo, deps.Locker, ttl, deps.Metrics, logger),
		CancelSubscription:     cancel_subscription.NewInteractor(deps.Repo, deps.Locker, ttl, deps.Metrics, logger),
		Metrics:                deps.Metrics,
	}
}

// New connects to Redis, Spanner and the wallet service described by cfg.
// Metrics are registered on reg. Call Close when done.
func New(ctx context.Context, cfg config.Config, reg prometheus.Registerer, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	redisClient, err := NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}

	spannerClient, err := spanner.NewClient(ctx, cfg.Spanner.DatabasePath(), cfg.Spanner.ClientOptions()...)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("create spanner client: %w", err)
	}

	clock := domain.RealClock{}
	wallet := adapters.NewHTTPWalletClient(
		&http.Client{Timeout: cfg.Wallet.Timeout},
		cfg.Wallet.BaseURL,
		adapters.WithBreakerConfig(adapters.BreakerConfig{
			FailureThreshold: cfg.Wallet.BreakerFailures,
			OpenTimeout:      cfg.Wallet.BreakerTimeout,
			HalfOpenRequests: 1,
		}),
		adapters.WithLogger(logger),
	)

	svc := Assemble(cfg, Dependencies{
		Repo:    repo.NewSubscriptionRepo(spannerClient, clock),
		Wallet:  wallet,
		Locker:  lock.NewRedisLock(redisClient, lock.WithPrefix(cfg.Lock.Prefix), lock.WithLogger(logger)),
		Clock:   clock,
		Metrics: metrics.New(reg),
		Logger:  logger,
	})
	svc.closers = []func() error{
		func() error { spannerClient.Close(); return nil },
		redisClient.Close,
	}

	logger.Info("enrollment service ready",
		"database", cfg.Spanner.DatabasePath(),
		"wallet", cfg.Wallet.BaseURL,
	)
	return svc, nil
}

// NewRedisClient parses cfg.URL and checks the connection with a ping.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Close releases the connections opened by New.
func (s *Service) Close() error {
	var errs []error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
