package main

import (
	"time"

	"github.com/MarcoPoloResearchLab/shelf/internal/config"
	"github.com/MarcoPoloResearchLab/shelf/internal/database"
	"github.com/MarcoPoloResearchLab/shelf/internal/library"
	"github.com/MarcoPoloResearchLab/shelf/internal/logging"
	"github.com/MarcoPoloResearchLab/shelf/internal/preview"
	"github.com/MarcoPoloResearchLab/shelf/internal/records"
	"go.uber.org/zap"
)

// runtime wires the library stack for one command invocation.
type runtime struct {
	config  config.AppConfig
	logger  *zap.Logger
	manager *database.Manager
	library *library.Service
}

func (app *application) openRuntime() (*runtime, error) {
	appConfig, err := config.Load(app.viper)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, err
	}

	manager, err := database.NewManager(database.ManagerConfig{
		Path:   appConfig.DatabasePath,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	store, err := records.NewStore(records.StoreConfig{
		Handles: manager,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	service, err := library.NewService(library.ServiceConfig{
		Records:        store,
		Clock:          time.Now,
		IDProvider:     library.NewUUIDProvider(),
		Inspector:      preview.NewPDFInspector(),
		MaxUploadBytes: appConfig.MaxUploadBytes,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	return &runtime{
		config:  appConfig,
		logger:  logger,
		manager: manager,
		library: service,
	}, nil
}

func (r *runtime) Close() error {
	_ = r.logger.Sync()
	return r.manager.Close()
}
