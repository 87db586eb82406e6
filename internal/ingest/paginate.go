package ingest

import (
	"context"

	"github.com/lox/mpawatch/internal/httputil"
	"github.com/lox/mpawatch/internal/logging"
	"github.com/lox/mpawatch/internal/metrics"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 1000
	DefaultMaxPages = 5
)

// FetchResult is the outcome of a paginated fetch. Records holds everything
// collected even when the fetch stopped early. Complete is true only when the
// upstream returned a short page before the budget ran out and no error
// occurred. Err is the error that ended the loop, if any.
type FetchResult[T any] struct {
	Records        []T
	Complete       bool
	PagesAttempted int
	Err            error
}

// PageFunc fetches one page starting at offset.
type PageFunc[T any] func(ctx context.Context, offset, limit int) ([]T, error)

type PageOptions struct {
	PageSize int
	MaxPages int
}

func (o PageOptions) withDefaults() PageOptions {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	return o
}

// Paginate walks offset pages through fetch, waiting on limiter before each
// request. A failed page ends the loop and keeps what was already collected;
// failed pages are never retried. Context cancellation is treated like an
// exhausted budget.
func Paginate[T any](ctx context.Context, limiter *httputil.Limiter, opts PageOptions, fetch PageFunc[T], logger *zap.Logger) FetchResult[T] {
	opts = opts.withDefaults()
	logger = logging.OrNop(logger)
	api := limiter.Name()

	var result FetchResult[T]
	offset := 0
	hasMore := true

	for hasMore && result.PagesAttempted < opts.MaxPages {
		if err := limiter.Acquire(ctx); err != nil {
			logger.Info("fetch cancelled", zap.String("api", api), zap.Int("offset", offset), zap.Error(err))
			result.Err = err
			break
		}

		result.PagesAttempted++
		page, err := fetch(ctx, offset, opts.PageSize)
		if err != nil {
			logger.Warn("page request failed, keeping partial results",
				zap.String("api", api),
				zap.Int("page", result.PagesAttempted),
				zap.Int("offset", offset),
				zap.Error(err))
			result.Err = err
			break
		}

		result.Records = append(result.Records, page...)
		offset += len(page)
		hasMore = len(page) == opts.PageSize
	}

	result.Complete = !hasMore && result.Err == nil

	metrics.RecordsFetched.WithLabelValues(api).Add(float64(len(result.Records)))
	if !result.Complete {
		metrics.FetchIncomplete.WithLabelValues(api).Inc()
		logger.Debug("fetch incomplete",
			zap.String("api", api),
			zap.Int("pages", result.PagesAttempted),
			zap.Int("records", len(result.Records)))
	}
	return result
}
