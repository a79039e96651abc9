package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/qlcremote/internal/config"
	"github.com/dokzlo13/qlcremote/internal/db"
	"github.com/dokzlo13/qlcremote/internal/history"
	"github.com/dokzlo13/qlcremote/internal/kv"
	"github.com/dokzlo13/qlcremote/internal/settings"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB             *db.DB
	SettingsBucket kv.Bucket
	Settings       *settings.Store
	History        *history.SQLiteLog

	// High-level services
	QLC    *QLCService
	Script *ScriptService
	Status *StatusService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Persisted settings override the file values
	s.SettingsBucket = kv.NewSQLiteBucket(database.DB, settings.BucketName)
	s.Settings = settings.NewStore(s.SettingsBucket)
	if _, err := s.Settings.Load(cfg.Settings()); err != nil {
		s.Close()
		return nil, err
	}

	s.History = history.NewSQLite(database.DB)
	if retention := cfg.History.Retention.Duration(); retention > 0 {
		pruned, err := s.History.DeleteOlderThan(retention)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to prune command history")
		} else if pruned > 0 {
			log.Info().Int64("entries", pruned).Dur("retention", retention).Msg("Pruned command history")
		}
	}

	s.QLC = NewQLCService(cfg, s.Settings, s.History)
	s.Script = NewScriptService(cfg, s.QLC.Session)
	s.Status = NewStatusService(cfg, s.QLC.Session)

	return s, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	if err := s.QLC.Start(ctx); err != nil {
		return err
	}

	s.Script.Start(ctx)
	s.Status.Start(ctx)

	return nil
}

// ResetSettings deletes every persisted setting and reloads the file values.
func (s *Services) ResetSettings() error {
	stored, err := s.SettingsBucket.All()
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	for key := range stored {
		if _, err := s.SettingsBucket.Delete(key); err != nil {
			return fmt.Errorf("failed to delete setting %s: %w", key, err)
		}
	}
	_, err = s.Settings.Load(s.cfg.Settings())
	return err
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Script != nil {
		s.Script.Close()
	}
	if s.QLC != nil {
		s.QLC.Close()
	}
	if s.Settings != nil {
		s.Settings.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
