package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"TorchLedger/internal/logger"
)

// GameLogRelPath is where the game writes UE_game.log, relative to the directory of its executable.
const GameLogRelPath = "../../../TorchLight/Saved/Logs/UE_game.log"

// ErrNoLogPath is returned when neither a log path nor a game directory is configured.
var ErrNoLogPath = errors.New("no game log path configured")

// Config holds all configuration for the application.
type Config struct {
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Tracker holds configuration for log tailing and statistics.
	Tracker TrackerConfig `mapstructure:"tracker"`
	// Prices holds configuration for the item table and the remote price feed.
	Prices PricesConfig `mapstructure:"prices"`
	// Storage holds paths for files the application writes.
	Storage StorageConfig `mapstructure:"storage"`
}

// TrackerConfig holds configuration for the log tracker.
type TrackerConfig struct {
	// LogPath is the full path of UE_game.log.
	LogPath string `mapstructure:"log_path" default:""`
	// GameDir is the directory holding the game executable; used when LogPath is empty.
	GameDir string `mapstructure:"game_dir" default:""`
	// PollMs is the fallback poll interval in milliseconds.
	PollMs int `mapstructure:"poll_ms" default:"300"`
	// FromStart replays the whole log instead of following new lines only.
	FromStart bool `mapstructure:"from_start" default:"false"`
	// MapCost is charged against income on every map entry.
	MapCost float64 `mapstructure:"map_cost" default:"0"`
	// MinInitSlots is the smallest bag burst accepted as a full inventory.
	MinInitSlots int `mapstructure:"min_init_slots" default:"20"`
}

// PricesConfig holds configuration for prices.
type PricesConfig struct {
	// TablePath overrides where full_table.json is read and written.
	TablePath string `mapstructure:"table_path" default:""`
	// Endpoint is the remote price feed.
	Endpoint string `mapstructure:"endpoint" default:"http://serverp.furtorch.heili.tech/get"`
	// Timeout bounds a remote refresh.
	Timeout time.Duration `mapstructure:"timeout" default:"5s"`
	// RefreshOnStart fetches remote prices when tracking starts.
	RefreshOnStart bool `mapstructure:"refresh_on_start" default:"false"`
}

// StorageConfig holds output locations.
type StorageConfig struct {
	// DropLog is the drop journal.
	DropLog string `mapstructure:"drop_log" default:"drop.txt"`
	// HistoryDB is the SQLite database of completed maps.
	HistoryDB string `mapstructure:"history_db" default:"torchledger.db"`
	// Prefs is the user preferences file.
	Prefs string `mapstructure:"prefs" default:"~/.config/torchledger/prefs.toml"`
}

// PollInterval returns the poll interval as a duration.
func (c TrackerConfig) PollInterval() time.Duration {
	if c.PollMs <= 0 {
		return 300 * time.Millisecond
	}
	return time.Duration(c.PollMs) * time.Millisecond
}

// ResolveLogPath returns LogPath, or derives it from GameDir.
func (c TrackerConfig) ResolveLogPath() (string, error) {
	if c.LogPath != "" {
		return c.LogPath, nil
	}
	if c.GameDir != "" {
		return LogPathFromGameDir(c.GameDir), nil
	}
	return "", ErrNoLogPath
}

// LogPathFromGameDir returns the UE_game.log location for a game executable directory.
func LogPathFromGameDir(dir string) string {
	return filepath.Clean(filepath.Join(dir, filepath.FromSlash(GameLogRelPath)))
}

// LoadConfig loads configuration from environment variables, a .env file and
// an optional config.toml in path.
func LoadConfig(path string) (*Config, error) {
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	// Map environment variables to nested keys (e.g. TRACKER_LOG_PATH -> tracker.log_path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &config, nil
}

// Default returns the configuration built from struct tag defaults alone,
// ignoring the environment and config files.
func Default() *Config {
	v := viper.New()
	bindValues(v, Config{}, "")
	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, field.Tag.Get("default"))
	}
}

// Settings flattens the configuration into key/value pairs for display.
func (c *Config) Settings() [][2]string {
	var out [][2]string
	flatten(reflect.ValueOf(*c), "", &out)
	return out
}

func flatten(v reflect.Value, prefix string, out *[][2]string) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if field.Type.Kind() == reflect.Struct {
			flatten(v.Field(i), key, out)
			continue
		}
		*out = append(*out, [2]string{key, fmt.Sprint(v.Field(i).Interface())})
	}
}
