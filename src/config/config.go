package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	NumFloors      = 10
	NumElevators   = 1
	TravelDuration = 1 * time.Second
	RequestLimit   = 50
	EnvPrefix      = "LIFTSIM_"
)

type Config struct {
	Building BuildingConfig `yaml:"building"`
	Driver   DriverConfig   `yaml:"driver"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	HTTP     HTTPConfig     `yaml:"http"`
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`
}

// BuildingConfig describes the building created on first start.
type BuildingConfig struct {
	Name          string   `yaml:"name"`
	TotalFloors   int      `yaml:"total_floors"`
	ElevatorNames []string `yaml:"elevators"`
}

type DriverConfig struct {
	Enabled        bool          `yaml:"enabled"`
	TravelDuration time.Duration `yaml:"travel_duration"`
	ShowStatus     bool          `yaml:"show_status"`
}

type DispatchConfig struct {
	// ReassignPending re-dispatches pending requests whenever an elevator goes idle.
	ReassignPending bool `yaml:"reassign_pending"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type StoreConfig struct {
	DataFile string `yaml:"data_file"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func Default() Config {
	return Config{
		Building: BuildingConfig{
			Name:          "Main Building",
			TotalFloors:   NumFloors,
			ElevatorNames: []string{"Elevator A"},
		},
		Driver: DriverConfig{
			Enabled:        true,
			TravelDuration: TravelDuration,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies the .env file
// and LIFTSIM_* environment overrides. Missing files are skipped.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("No config file, using defaults", "path", path)
		case err != nil:
			return cfg, fmt.Errorf("open config: %w", err)
		default:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
				return cfg, fmt.Errorf("decode config %s: %w", path, err)
			}
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Building.TotalFloors < 2 {
		return fmt.Errorf("building.total_floors must be at least 2, got %d", c.Building.TotalFloors)
	}
	if len(c.Building.ElevatorNames) == 0 {
		return errors.New("building.elevators must name at least one elevator")
	}
	if c.Driver.Enabled && c.Driver.TravelDuration <= 0 {
		return fmt.Errorf("driver.travel_duration must be positive, got %s", c.Driver.TravelDuration)
	}
	return nil
}

// SlogLevel maps the configured level name onto a slog level.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func applyEnv(cfg *Config) error {
	if v, ok := lookup("BUILDING_NAME"); ok {
		cfg.Building.Name = v
	}
	if v, ok := lookup("TOTAL_FLOORS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sTOTAL_FLOORS: %w", EnvPrefix, err)
		}
		cfg.Building.TotalFloors = n
	}
	if v, ok := lookup("ELEVATORS"); ok {
		var names []string
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
		cfg.Building.ElevatorNames = names
	}
	if v, ok := lookup("TRAVEL_DURATION"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sTRAVEL_DURATION: %w", EnvPrefix, err)
		}
		cfg.Driver.TravelDuration = d
	}
	if v, ok := lookup("DRIVER"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sDRIVER: %w", EnvPrefix, err)
		}
		cfg.Driver.Enabled = b
	}
	if v, ok := lookup("REASSIGN_PENDING"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sREASSIGN_PENDING: %w", EnvPrefix, err)
		}
		cfg.Dispatch.ReassignPending = b
	}
	if v, ok := lookup("HTTP_ADDR"); ok {
		cfg.HTTP.Addr = v
	}
	if v, ok := lookup("DATA_FILE"); ok {
		cfg.Store.DataFile = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := lookup("LOG_FILE"); ok {
		cfg.Log.File = v
	}
	return nil
}

func lookup(key string) (string, bool) {
	return os.LookupEnv(EnvPrefix + key)
}
