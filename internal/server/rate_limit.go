package server

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/saasops/internal/observability/context"
	"github.com/smallbiznis/saasops/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/saasops/internal/observability/metrics"
	"github.com/smallbiznis/saasops/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	clientHeader = "X-Client-Id"

	rateLimitReasonReportRate       = "report-rate"
	rateLimitReasonExportRate       = "export-rate"
	rateLimitReasonExportConcurrent = "export-concurrency"
)

// ReportRateLimit throttles report reads per client.
func (s *Server) ReportRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx, client := withClient(c)
		endpoint := normalizeRateLimitEndpoint(c)

		res, err := s.limiter.AllowReport(ctx, client)
		if err != nil {
			logger.FromContext(ctx).Warn("report rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			denyRateLimit(c, endpoint, rateLimitReasonReportRate, res, s.obsMetrics)
			return
		}

		recordRateLimitAllowed(ctx, endpoint, s.obsMetrics)
		c.Next()
	}
}

// ExportRateLimit throttles PDF exports and allows one running export per
// client.
func (s *Server) ExportRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx, client := withClient(c)
		endpoint := normalizeRateLimitEndpoint(c)

		res, err := s.limiter.AllowExport(ctx, client)
		if err != nil {
			logger.FromContext(ctx).Warn("export rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			denyRateLimit(c, endpoint, rateLimitReasonExportRate, res, s.obsMetrics)
			return
		}

		token, locked, err := s.limiter.TryLockExport(ctx, client)
		if err != nil {
			logger.FromContext(ctx).Warn("export concurrency lock failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !locked {
			denyRateLimit(c, endpoint, rateLimitReasonExportConcurrent, nil, s.obsMetrics)
			return
		}
		defer func() {
			if err := s.limiter.ReleaseExport(context.WithoutCancel(ctx), client, token); err != nil {
				logger.FromContext(ctx).Warn("export concurrency unlock failed", zap.Error(err))
			}
		}()

		recordRateLimitAllowed(ctx, endpoint, s.obsMetrics)
		c.Next()
	}
}

func withClient(c *gin.Context) (context.Context, string) {
	client := strings.TrimSpace(c.GetHeader(clientHeader))
	if client == "" {
		client = c.ClientIP()
	}
	ctx := obscontext.WithClient(c.Request.Context(), client)
	c.Request = c.Request.WithContext(ctx)
	return ctx, client
}

func denyRateLimit(c *gin.Context, endpoint, reason string, res *ratelimit.Result, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("report rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	recordRateLimitDenied(ctx, endpoint, reason, metrics)

	c.Header("Retry-After", retryAfterSeconds(res))
	c.Header("X-Rate-Limited-Reason", reason)
	if reason == rateLimitReasonExportConcurrent {
		AbortWithError(c, ErrExportInProgress)
		return
	}
	AbortWithError(c, ErrRateLimited)
}

func retryAfterSeconds(res *ratelimit.Result) string {
	if res == nil || res.RetryAfter <= 0 {
		return "1"
	}
	return strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds())))
}

func recordRateLimitAllowed(ctx context.Context, endpoint string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, endpoint, reason)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
