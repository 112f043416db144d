package config

import (
	"github.com/shopspring/decimal"

	"github.com/garyjia/procurement-tracker/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// Threshold strings have already been checked by Validate.
func (c *Config) ToContainerConfig() *container.Config {
	works, _ := decimal.NewFromString(c.Thresholds.Works)
	goods, _ := decimal.NewFromString(c.Thresholds.GoodsServices)

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Thresholds: container.ThresholdConfig{
			Works:             works,
			GoodsServices:     goods,
			ReferenceCurrency: c.Thresholds.ReferenceCurrency,
		},
		Activity: container.ActivityConfig{
			RedisEnabled:  c.Redis.Enabled,
			RedisAddr:     c.Redis.Addr,
			RedisPassword: c.Redis.Password,
			RedisDB:       c.Redis.DB,
			KeyPrefix:     c.Redis.KeyPrefix,
			TTL:           c.Activity.TTL,
			SweepInterval: c.Activity.SweepInterval,
		},
		Export: container.ExportConfig{
			SheetName: c.Export.SheetName,
		},
		Dispatcher: container.DispatcherConfig{
			CloseTimeout: c.Dispatcher.CloseTimeout,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
	}
}
