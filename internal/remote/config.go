package remote

import (
	"context"
	"fmt"
)

// Driver names accepted by NewStorage.
const (
	DriverMinio  = "minio"
	DriverS3     = "s3"
	DriverMemory = "memory"
)

// Config selects and configures a storage driver.
type Config struct {
	Driver    string `mapstructure:"driver"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Secure    bool   `mapstructure:"secure"`
}

// NewStorage builds the driver named by cfg.Driver.
func NewStorage(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Driver {
	case DriverMinio, "":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("storage endpoint is required for the %s driver", DriverMinio)
		}
		return NewMinioStorage(cfg)
	case DriverS3:
		return NewS3Storage(ctx, cfg)
	case DriverMemory:
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
