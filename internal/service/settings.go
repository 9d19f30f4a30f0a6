package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"slideboard-measure/internal/repository"
	"slideboard-measure/internal/store"
)

// 租户设置 key
const (
	SettingCheckInGraceMinutes  = "measure.checkin.grace_minutes"
	SettingCheckInGeofenceMeter = "measure.checkin.geofence_meters"
	SettingFeeRequired          = "measure.fee.required"
)

// settingUnset 缓存"未配置"结果的占位值
const settingUnset = "\x00unset"

// SettingsProvider 租户设置查询，未配置时返回 def
type SettingsProvider interface {
	Get(ctx context.Context, tenantID, key, def string) (string, error)
}

// RepositorySettingsProvider 直接读 tenant_settings
type RepositorySettingsProvider struct {
	repo repository.TenantSettingsRepository
}

func NewRepositorySettingsProvider(repo repository.TenantSettingsRepository) *RepositorySettingsProvider {
	return &RepositorySettingsProvider{repo: repo}
}

func (p *RepositorySettingsProvider) Get(ctx context.Context, tenantID, key, def string) (string, error) {
	v, found, err := p.repo.GetSetting(ctx, tenantID, key)
	if err != nil {
		return def, err
	}
	if !found {
		return def, nil
	}
	return v, nil
}

// CachedSettingsProvider Redis 读穿缓存
// Redis 不可用时降级为直接查库
type CachedSettingsProvider struct {
	repo   repository.TenantSettingsRepository
	kv     store.KV
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedSettingsProvider(repo repository.TenantSettingsRepository, kv store.KV, ttl time.Duration, logger *zap.Logger) *CachedSettingsProvider {
	return &CachedSettingsProvider{repo: repo, kv: kv, ttl: ttl, logger: logger}
}

func settingsCacheKey(tenantID, key string) string {
	return fmt.Sprintf("measure:settings:%s:%s", tenantID, key)
}

func (p *CachedSettingsProvider) Get(ctx context.Context, tenantID, key, def string) (string, error) {
	cacheKey := settingsCacheKey(tenantID, key)

	cached, err := p.kv.Get(ctx, cacheKey)
	switch {
	case err == nil:
		if cached == settingUnset {
			return def, nil
		}
		return cached, nil
	case errors.Is(err, store.ErrMiss):
	default:
		p.logger.Warn("Settings cache read failed", zap.String("key", cacheKey), zap.Error(err))
	}

	v, found, err := p.repo.GetSetting(ctx, tenantID, key)
	if err != nil {
		return def, fmt.Errorf("failed to get tenant setting %s: %w", key, err)
	}
	stored := v
	if !found {
		stored = settingUnset
	}
	if err := p.kv.Set(ctx, cacheKey, stored, p.ttl); err != nil {
		p.logger.Warn("Settings cache write failed", zap.String("key", cacheKey), zap.Error(err))
	}
	if !found {
		return def, nil
	}
	return v, nil
}

// Invalidate 设置变更后清除缓存
func (p *CachedSettingsProvider) Invalidate(ctx context.Context, tenantID, key string) error {
	return p.kv.Delete(ctx, settingsCacheKey(tenantID, key))
}

// settingInt 读取整数设置，查询失败或格式错误时使用默认值
func settingInt(ctx context.Context, p SettingsProvider, logger *zap.Logger, tenantID, key string, def int) int {
	raw, err := p.Get(ctx, tenantID, key, strconv.Itoa(def))
	if err != nil {
		logger.Warn("Failed to read tenant setting, using default",
			zap.String("tenant_id", tenantID), zap.String("key", key), zap.Error(err))
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		logger.Warn("Invalid tenant setting, using default",
			zap.String("tenant_id", tenantID), zap.String("key", key), zap.String("value", raw))
		return def
	}
	return n
}

// settingBool 查询失败时返回错误（测量费准入不能静默放行）
func settingBool(ctx context.Context, p SettingsProvider, tenantID, key string, def bool) (bool, error) {
	raw, err := p.Get(ctx, tenantID, key, strconv.FormatBool(def))
	if err != nil {
		return def, err
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return def, nil
	}
	return b, nil
}
