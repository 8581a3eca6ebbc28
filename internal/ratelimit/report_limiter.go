package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/saasops/internal/config"
)

const (
	keyReportClient = "report:client:%s"
	keyExportClient = "export:client:%s"
	keyExportLock   = "export:lock:%s"
)

// ReportLimiter throttles report builds per client. Every report reloads
// the full ledger, so exports are also limited to one at a time per client.
type ReportLimiter struct {
	enabled bool

	bucket Bucket
	mutex  Mutex

	reportRate  float64
	reportBurst int
	exportRate  float64
	exportBurst int
	lockTTL     time.Duration
}

// NewReportLimiter returns nil when rate limiting is disabled. Without a
// redis address the limits are kept in process.
func NewReportLimiter(cfg config.Config) (*ReportLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if limitCfg.ReportClientRate <= 0 || limitCfg.ReportClientBurst <= 0 {
		return nil, errors.New("report rate limit must be positive")
	}
	if limitCfg.ExportClientRate <= 0 || limitCfg.ExportClientBurst <= 0 {
		return nil, errors.New("export rate limit must be positive")
	}

	limiter := &ReportLimiter{
		enabled:     true,
		reportRate:  limitCfg.ReportClientRate,
		reportBurst: limitCfg.ReportClientBurst,
		exportRate:  limitCfg.ExportClientRate,
		exportBurst: limitCfg.ExportClientBurst,
		lockTTL:     time.Duration(limitCfg.ExportLockTTLSeconds) * time.Second,
	}
	if limiter.lockTTL <= 0 {
		limiter.lockTTL = time.Minute
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		limiter.bucket = NewLocalBucket()
		limiter.mutex = NewLocalLocker()
		return limiter, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	limiter.bucket = NewTokenBucket(client)
	limiter.mutex = NewLocker(client)
	return limiter, nil
}

// NewLocalReportLimiter builds an in-process limiter with explicit limits.
func NewLocalReportLimiter(reportRate float64, reportBurst int, exportRate float64, exportBurst int, lockTTL time.Duration) *ReportLimiter {
	return &ReportLimiter{
		enabled:     true,
		bucket:      NewLocalBucket(),
		mutex:       NewLocalLocker(),
		reportRate:  reportRate,
		reportBurst: reportBurst,
		exportRate:  exportRate,
		exportBurst: exportBurst,
		lockTTL:     lockTTL,
	}
}

func (l *ReportLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *ReportLimiter) AllowReport(ctx context.Context, client string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyReportClient, normalizeClient(client)), l.reportRate, l.reportBurst)
}

func (l *ReportLimiter) AllowExport(ctx context.Context, client string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyExportClient, normalizeClient(client)), l.exportRate, l.exportBurst)
}

func (l *ReportLimiter) TryLockExport(ctx context.Context, client string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.mutex.TryLock(ctx, fmt.Sprintf(keyExportLock, normalizeClient(client)), l.lockTTL)
}

func (l *ReportLimiter) ReleaseExport(ctx context.Context, client, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.mutex.Release(ctx, fmt.Sprintf(keyExportLock, normalizeClient(client)), token)
}

func normalizeClient(client string) string {
	client = strings.TrimSpace(client)
	if client == "" {
		return "anonymous"
	}
	return client
}
