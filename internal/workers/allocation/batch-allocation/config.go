// internal/workers/allocation/batch-allocation/config.go
package batchallocation

import "time"

type Config struct {
	Timeout      time.Duration
	MaxBatchSize int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      5 * time.Minute,
		MaxBatchSize: 200,
	}
}
