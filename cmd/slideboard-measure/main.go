package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"slideboard-measure/internal/config"
	"slideboard-measure/internal/database"
	httpapi "slideboard-measure/internal/http"
	"slideboard-measure/internal/logger"
	"slideboard-measure/internal/notify"
	"slideboard-measure/internal/repository"
	"slideboard-measure/internal/service"
	"slideboard-measure/internal/store"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "slideboard-measure")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 仓储：数据库不可用时退回内存仓储（本地联调）
	var (
		db          *sql.DB
		measure     repository.MeasureStore
		settingsDB  repository.TenantSettingsRepository
		users       repository.UsersRepository
		permissions repository.RolePermissionsRepository
	)
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(ctx, &cfg.Database, log); err == nil {
			db = d
			log.Info("DB enabled for slideboard-measure")
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory store", zap.Error(err))
		}
	}
	if db != nil {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
		measure = repository.NewPostgresMeasureStore(db, cfg.Measure.LockTimeout)
		settingsDB = repository.NewPostgresTenantSettingsRepository(db)
		users = repository.NewPostgresUsersRepository(db)
		permissions = repository.NewPostgresRolePermissionsRepository(db)
	} else {
		measure = repository.NewMemoryMeasureStore()
		settingsDB = repository.NewMemoryTenantSettings()
		users = repository.NewMemoryUsers()
		permissions = repository.NewMemoryRolePermissions()
	}

	// 租户设置：Redis 可用时走读穿缓存
	redisClient := store.NewRedisClient(&cfg.Redis)
	var settings service.SettingsProvider = service.NewRepositorySettingsProvider(settingsDB)
	pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Warn("Redis unavailable, tenant settings cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	} else {
		settings = service.NewCachedSettingsProvider(settingsDB, store.NewRedisKV(redisClient), cfg.Measure.SettingsTTL, log)
	}
	pingCancel()

	sender, closeSender, err := notify.NewSender(cfg, redisClient, log)
	if err != nil {
		log.Fatal("Failed to create notification sender", zap.String("transport", cfg.Notify.Transport), zap.Error(err))
	}
	defer closeSender()

	svc := service.NewMeasureTaskService(service.MeasureTaskDeps{
		Store:       measure,
		Permissions: service.NewRolePermissionChecker(permissions),
		Settings:    settings,
		Escalation:  service.NewEscalationNotifier(users, sender, cfg.Measure.EscalationLimit, log),
		Config:      cfg.Measure,
		Logger:      log,
	})

	router := httpapi.NewRouter(log)
	router.RegisterMeasureTaskRoutes(httpapi.NewMeasureTaskHandler(svc, log))
	router.RegisterHealthRoutes()

	srv := service.NewServer(cfg.HTTP.Addr, router, log)
	srv.DrainOnStop(svc.WaitEscalations)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case err := <-errCh:
		log.Error("HTTP server stopped", zap.Error(err))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn("Graceful shutdown incomplete", zap.Error(err))
	}
	_ = redisClient.Close()
	if db != nil {
		_ = db.Close()
	}
}
