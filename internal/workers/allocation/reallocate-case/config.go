// internal/workers/allocation/reallocate-case/config.go
package reallocatecase

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 2 * time.Hour,
	}
}
