// Package config loads runtime settings from the environment and container
// definitions from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultConfigFile   = "lighthouse.yaml"
	DefaultPollInterval = 100 * time.Millisecond
)

// Settings controls a single lighthouse run.
type Settings struct {
	ConfigFile string
	// PortProperties is the dotenv file receiving captured port properties.
	// Empty disables writing.
	PortProperties string
	ShowLogs       string
	Follow         bool
	KeepContainers bool
	RemoveVolumes  bool
	// StatusAddr is the listen address of the status API in follow mode. Empty
	// disables the API.
	StatusAddr   string
	PollInterval time.Duration
}

// Load reads settings from the environment, allowing them to be loaded first
// from envFile. A missing envFile is not an error.
func Load(envFile string) (Settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	s := Settings{
		ConfigFile:     getEnv("LIGHTHOUSE_CONFIG", DefaultConfigFile),
		PortProperties: getEnv("LIGHTHOUSE_PORT_PROPERTIES", ""),
		ShowLogs:       getEnv("LIGHTHOUSE_SHOW_LOGS", ""),
		StatusAddr:     getEnv("LIGHTHOUSE_STATUS_ADDR", ""),
	}
	var err error
	if s.Follow, err = getBool("LIGHTHOUSE_FOLLOW"); err != nil {
		return Settings{}, err
	}
	if s.KeepContainers, err = getBool("LIGHTHOUSE_KEEP_CONTAINERS"); err != nil {
		return Settings{}, err
	}
	if s.RemoveVolumes, err = getBool("LIGHTHOUSE_REMOVE_VOLUMES"); err != nil {
		return Settings{}, err
	}
	s.PollInterval = DefaultPollInterval
	if v := getEnv("LIGHTHOUSE_POLL_INTERVAL", ""); v != "" {
		if s.PollInterval, err = time.ParseDuration(v); err != nil || s.PollInterval <= 0 {
			return Settings{}, fmt.Errorf("LIGHTHOUSE_POLL_INTERVAL: invalid duration %q", v)
		}
	}
	return s, nil
}

// Environ returns the process environment as a map. It seeds ${NAME}
// substitution in container definitions.
func Environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}

// getEnv returns os.Getenv(key) if set, or else def.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getBool(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}
