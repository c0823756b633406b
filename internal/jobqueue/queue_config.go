/*
Package jobqueue configuration - tunable parameters for the River
delivery queue.

Delivery jobs are cheap and latency-sensitive: a recipient who is not
connected right now will not be connected in an hour either, and the
durable notification row covers them regardless. Retries therefore only
paper over transient database errors, not missed deliveries, and the
retry budget stays small.
*/
package jobqueue

import (
	"os"
	"time"

	"github.com/riverqueue/river"
)

// QueueConfig holds all configurable parameters for the job queue.
type QueueConfig struct {
	// Worker Configuration
	MaxWorkers int // Number of concurrent workers processing jobs (default: 10)

	// Retry Configuration
	MaxRetries int           // Maximum attempts per job (default: 3)
	JobTimeout time.Duration // Maximum time a single delivery job can run (default: 30 seconds)
}

// DefaultQueueConfig returns the default configuration.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers: 10,
		MaxRetries: 3,
		JobTimeout: 30 * time.Second,
	}
}

// ProductionQueueConfig returns a configuration for production use.
func ProductionQueueConfig() *QueueConfig {
	config := DefaultQueueConfig()
	config.MaxWorkers = 20
	return config
}

// DevelopmentQueueConfig returns a configuration for development.
func DevelopmentQueueConfig() *QueueConfig {
	config := DefaultQueueConfig()
	config.MaxWorkers = 3
	config.MaxRetries = 1
	return config
}

// GetQueueConfig returns the configuration for the current environment.
func GetQueueConfig() *QueueConfig {
	switch os.Getenv("YARDLINE_ENV") {
	case "production":
		return ProductionQueueConfig()
	case "development":
		return DevelopmentQueueConfig()
	default:
		return DefaultQueueConfig()
	}
}

// RiverQueueConfig converts our config to River's queue configuration format.
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {
			MaxWorkers: c.MaxWorkers,
		},
	}
}
