// Package config loads typed configuration structs from environment
// variables, with optional .env file support for local development.
//
// Each configuration type is parsed once per process and cached, so any
// component can call Load for the config it needs without coordinating
// initialization order.
//
// Usage:
//
//	type SchedulerConfig struct {
//		Interval  time.Duration `env:"DISPATCH_INTERVAL" envDefault:"10s"`
//		BatchSize int           `env:"DISPATCH_BATCH_SIZE" envDefault:"30"`
//	}
//
//	var cfg SchedulerConfig
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
package config
