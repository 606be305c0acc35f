package cmd

import (
	"context"

	"automation-scheduler/config"
	"automation-scheduler/pkg/cache"
	"automation-scheduler/pkg/datasource"
	"automation-scheduler/pkg/logger"
	"automation-scheduler/pkg/postgres"
	"automation-scheduler/pkg/telegram"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type AppDependency struct {
	db         *postgres.DB
	cfg        *config.Config
	log        *logger.Logger
	validator  *goValidator.Validate
	echo       *echo.Echo
	cache      cache.Cache
	telegram   *telegram.Client
	dataSource datasource.Registry
}

func NewAppDependency(ctx context.Context) (*AppDependency, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return nil, err
	}

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.New(cfg.Telegram, log, "")
		if err != nil {
			log.Error("Failed to create telegram client", zap.Error(err))
			return nil, err
		}
		minLevel, err := zapcore.ParseLevel(cfg.Telegram.AlertMinLevel)
		if err != nil {
			minLevel = zapcore.ErrorLevel
		}
		log = log.WithAlertSender(telegramClient, minLevel)
	}

	db, err := postgres.NewDB(cfg.DB, log)
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	return &AppDependency{
		cfg:        cfg,
		log:        log,
		validator:  goValidator.New(),
		db:         db,
		echo:       e,
		cache:      cache.NewCache(cfg.Cache.DefaultExpiration, cfg.Cache.CleanupInterval),
		telegram:   telegramClient,
		dataSource: datasource.NewRegistry(cfg.DataSources),
	}, nil
}

func (d *AppDependency) Close() error {
	d.log.Info("Closing app dependency")
	if err := d.dataSource.Close(); err != nil {
		d.log.Error("Failed to close data sources", zap.Error(err))
	}
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
