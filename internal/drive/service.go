package drive

import (
	"context"
	"sync"
	"time"

	errors "github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-drive/library/log"
)

// Clock returns the current time in UTC.
type Clock func() time.Time

// Service is the node lifecycle and versioning engine.
type Service struct {
	db       *gorm.DB
	settings Settings
	logger   logSDK.Logger
	blobs    BlobStore
	notifier Notifier
	policy   AccessPolicy
	metrics  *Metrics
	clock    Clock

	// async tracks fire-and-forget tails such as retention and notifications.
	async sync.WaitGroup
}

// NewService constructs the drive engine and runs migrations.
func NewService(db *gorm.DB, settings Settings, blobs BlobStore, notifier Notifier, policy AccessPolicy, logger logSDK.Logger, clock Clock) (*Service, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if logger == nil {
		logger = log.Logger.Named("drive_service")
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if policy == nil {
		policy = NewMemberPolicy(db, settings.Admins)
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	if err := RunMigrations(context.Background(), db, logger); err != nil {
		return nil, errors.WithStack(err)
	}

	return &Service{
		db:       db,
		settings: settings.withDefaults(),
		logger:   logger,
		blobs:    blobs,
		notifier: notifier,
		policy:   policy,
		metrics:  InitMetrics(nil),
		clock:    clock,
	}, nil
}

// Settings returns the effective settings.
func (s *Service) Settings() Settings {
	return s.settings
}

// Wait blocks until every in-flight async tail has finished.
func (s *Service) Wait() {
	s.async.Wait()
}

// LoggerFromContext returns the request-scoped logger when available.
func (s *Service) LoggerFromContext(ctx context.Context) logSDK.Logger {
	if ctx != nil {
		if ctxLogger := gmw.GetLogger(ctx); ctxLogger != nil {
			return ctxLogger
		}
	}
	if s != nil && s.logger != nil {
		return s.logger
	}
	return log.Logger.Named("drive_fallback")
}

// goAsync runs fn on a detached context so the caller never waits on it.
func (s *Service) goAsync(ctx context.Context, name string, fn func(ctx context.Context) error) {
	logger := s.LoggerFromContext(ctx)
	if ginCtx, ok := gmw.GetGinCtxFromStdCtx(ctx); ok {
		// gin recycles its contexts once the handler returns
		ctx = ginCtx.Copy()
	}
	detached := context.WithoutCancel(ctx)
	s.async.Add(1)
	go func() {
		defer s.async.Done()
		if err := fn(detached); err != nil {
			logger.Warn("async task failed", zap.String("task", name), zap.Error(err))
		}
	}()
}

// warnOnError logs an error for diagnostics without failing the caller.
func (s *Service) warnOnError(ctx context.Context, err error, msg string, fields ...zap.Field) {
	if err == nil {
		return
	}
	s.LoggerFromContext(ctx).Warn(msg, append(fields, zap.Error(err))...)
}

// isContextDone reports whether the context has been cancelled or exceeded its deadline.
func isContextDone(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	err := ctx.Err()
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
