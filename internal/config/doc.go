// Package config provides configuration management for TorchLedger.
//
// It utilizes Viper for loading configuration from environment variables,
// an optional config file and a .env file.
//
// # Configuration Structure
//
// The Config struct is divided into subsections:
//   - Log: logging level, format and destination
//   - Tracker: game log location, poll interval and map cost
//   - Prices: item table location and remote endpoint
//   - Storage: drop journal, run history and preferences paths
//
// Environment variables map onto nested keys, e.g. TRACKER_LOG_PATH -> tracker.log_path.
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Tracker.LogPath)
package config
