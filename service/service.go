package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parleyhq/parley/minio"
	"github.com/parleyhq/parley/postgres"
	"github.com/parleyhq/parley/pubsub"
	"github.com/parleyhq/parley/types"
)

type Config struct {
	Postgres *postgres.Postgres
	PubSub   *pubsub.PubSub
	Minio    *minio.Minio
	Logger   *slog.Logger
	// ReportPolicy maps report reason codes to an automatic block of the
	// reported user. Nil means DefaultReportPolicy.
	ReportPolicy map[types.ReportReason]bool
	BaseCtx      context.Context
	// InteractiveTimeout bounds single-shot mutating operations such as
	// sends and accepts. Zero means defaultInteractiveTimeout.
	InteractiveTimeout time.Duration
	BackgroundTimeout  time.Duration
}

const defaultInteractiveTimeout = 10 * time.Second

type Service struct {
	Postgres *postgres.Postgres
	PubSub   *pubsub.PubSub
	Minio    *minio.Minio
	Logger   *slog.Logger

	reportPolicy       map[types.ReportReason]bool
	baseCtx            context.Context
	interactiveTimeout time.Duration
	backgroundTimeout  time.Duration
	wg                 sync.WaitGroup
	errs               chan error
}

func New(cfg *Config) *Service {
	reportPolicy := cfg.ReportPolicy
	if reportPolicy == nil {
		reportPolicy = DefaultReportPolicy()
	}

	interactiveTimeout := cfg.InteractiveTimeout
	if interactiveTimeout == 0 {
		interactiveTimeout = defaultInteractiveTimeout
	}

	return &Service{
		Postgres: cfg.Postgres,
		PubSub:   cfg.PubSub,
		Minio:    cfg.Minio,
		Logger:   cfg.Logger,

		reportPolicy:       reportPolicy,
		baseCtx:            cfg.BaseCtx,
		interactiveTimeout: interactiveTimeout,
		backgroundTimeout:  cfg.BackgroundTimeout,
		errs:               make(chan error, 1),
	}
}

// interactive bounds a single-shot store operation. A stalled store fails
// the call instead of wedging the caller; long-lived subscriptions stay
// unbounded.
func (svc *Service) interactive(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, svc.interactiveTimeout)
}

func (svc *Service) Errs() <-chan error {
	return svc.errs
}

func (svc *Service) Close() error {
	svc.wg.Wait()
	close(svc.errs)
	return nil
}

func (svc *Service) background(fn func(ctx context.Context) error) {
	svc.wg.Go(func() {
		defer func() {
			if rcv := recover(); rcv != nil {
				select {
				case svc.errs <- fmt.Errorf("service background panic: %v", rcv):
				default:
				}
			}
		}()

		ctx, cancel := context.WithTimeout(svc.baseCtx, svc.backgroundTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			select {
			case svc.errs <- fmt.Errorf("service background error: %w", err):
			default:
			}
		}
	})
}
