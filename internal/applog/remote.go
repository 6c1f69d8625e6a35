package applog

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/Saisumanthklv/weapp-starter-template/internal/errors"
	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
)

// ConfigSource fetches a JSON document and decodes it into out.
type ConfigSource interface {
	Fetch(ctx context.Context, endpoint string, out any) error
}

// RemoteConfigFetcher pulls a ConfigPatch from a remote endpoint and applies
// it. Concurrent calls share one request.
type RemoteConfigFetcher struct {
	target          *Logger
	source          ConfigSource
	endpoint        string
	console         logger.Logger
	maxRetries      uint64
	initialInterval time.Duration
	group           singleflight.Group
}

// NewRemoteConfigFetcher creates a fetcher applying patches to target.
func NewRemoteConfigFetcher(target *Logger, source ConfigSource, endpoint string, console logger.Logger) *RemoteConfigFetcher {
	if console == nil {
		console = logger.NewDiscardLogger()
	}
	return &RemoteConfigFetcher{
		target:          target,
		source:          source,
		endpoint:        endpoint,
		console:         console.Module("remote_config"),
		maxRetries:      2,
		initialInterval: 500 * time.Millisecond,
	}
}

// SetRetryPolicy changes the retry count and first backoff interval.
func (f *RemoteConfigFetcher) SetRetryPolicy(maxRetries uint64, initial time.Duration) {
	f.maxRetries = maxRetries
	f.initialInterval = initial
}

// Refresh fetches and applies the remote configuration. Errors are logged
// and returned; the current configuration stays in place on failure.
func (f *RemoteConfigFetcher) Refresh(ctx context.Context) error {
	if f.endpoint == "" {
		return nil
	}
	v, err, shared := f.group.Do(f.endpoint, func() (any, error) {
		return f.fetch(ctx)
	})
	if err != nil {
		f.console.Warn("failed to fetch remote log config",
			logger.String("endpoint", f.endpoint),
			logger.Error(err))
		return err
	}
	if !shared {
		f.target.UpdateConfig(v.(ConfigPatch))
	}
	return nil
}

func (f *RemoteConfigFetcher) fetch(ctx context.Context) (ConfigPatch, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.initialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, f.maxRetries), ctx)

	var patch ConfigPatch
	op := func() error {
		patch = ConfigPatch{}
		if err := f.source.Fetch(ctx, f.endpoint, &patch); err != nil {
			if errors.IsCategory(err, errors.CategorySerialization) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		f.console.Debug("retrying remote log config fetch",
			logger.Error(err),
			logger.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return ConfigPatch{}, errors.New(err).
			Component("applog").
			Category(errors.CategoryTransport).
			Context("endpoint", f.endpoint).
			Build()
	}
	return patch, nil
}
