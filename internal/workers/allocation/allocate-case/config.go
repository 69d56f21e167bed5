// internal/workers/allocation/allocate-case/config.go
package allocatecase

import "time"

type Config struct {
	// Timeout must outlast the full wave loop: maxWaves acceptance windows
	// plus slack.
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 2 * time.Hour,
	}
}
