package config

import "fmt"

// ProfilingConfig configures continuous profiling pushed to Pyroscope
type ProfilingConfig struct {
	Enabled           bool              `yaml:"enabled" env:"PYROSCOPE_ENABLED" env-default:"false"`
	ApplicationName   string            `yaml:"applicationName" env:"PYROSCOPE_APPLICATION_NAME" env-default:"smarthouse-bridge"`
	ServerAddress     string            `yaml:"serverAddress" env:"PYROSCOPE_SERVER_ADDRESS"`
	BasicAuthUser     string            `yaml:"basicAuthUser" env:"PYROSCOPE_BASIC_AUTH_USER"`
	BasicAuthPassword string            `yaml:"basicAuthPassword" env:"PYROSCOPE_BASIC_AUTH_PASSWORD"`
	TenantID          string            `yaml:"tenantID" env:"PYROSCOPE_TENANT_ID"`
	Tags              map[string]string `yaml:"tags"`

	CPU        bool `yaml:"cpu" env:"PYROSCOPE_CPU_PROFILE" env-default:"true"`
	Alloc      bool `yaml:"alloc" env:"PYROSCOPE_ALLOC_PROFILE" env-default:"true"`
	Inuse      bool `yaml:"inuse" env:"PYROSCOPE_INUSE_PROFILE" env-default:"true"`
	Goroutines bool `yaml:"goroutines" env:"PYROSCOPE_GOROUTINE_PROFILE" env-default:"false"`

	// Mutex and block profiling need a sampling rate set on the runtime
	MutexRate int `yaml:"mutexRate" env:"PYROSCOPE_MUTEX_PROFILE_RATE" env-default:"0"`
	BlockRate int `yaml:"blockRate" env:"PYROSCOPE_BLOCK_PROFILE_RATE" env-default:"0"`
}

// ValidateProfiling checks the section when profiling is enabled
func ValidateProfiling(cfg *ProfilingConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.ApplicationName == "" {
		return fmt.Errorf("profiling application name is required when profiling is enabled")
	}
	if cfg.ServerAddress == "" {
		return fmt.Errorf("profiling server address is required when profiling is enabled")
	}
	if cfg.MutexRate < 0 || cfg.BlockRate < 0 {
		return fmt.Errorf("profiling mutex and block rates must be >= 0")
	}
	if !cfg.CPU && !cfg.Alloc && !cfg.Inuse && !cfg.Goroutines && cfg.MutexRate == 0 && cfg.BlockRate == 0 {
		return fmt.Errorf("at least one profile type must be enabled")
	}

	return nil
}
