// Package config layers Whisper's runtime settings: built-in defaults,
// an optional YAML file, environment variables, then CLI flags, each
// overriding the last. Grounded on the teacher's user/project JSON
// settings.Manager (same override-chain shape), generalized to the
// env-var contract spec.md §6 names and re-keyed to YAML since nothing
// here is meant to be hand-edited per-project.
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in spec.md §6.
type Config struct {
	SSHPort           int      `yaml:"ssh_port"`
	SSHHostKeyPath    string   `yaml:"ssh_host_key_path"`
	P2PPort           int      `yaml:"p2p_port"`
	BootstrapNodes    []string `yaml:"bootstrap_nodes"`
	DefaultRoom       string   `yaml:"default_room"`
	MaxMessageSize    int      `yaml:"max_message_size"`
	MaxMessagesInMem  int      `yaml:"max_messages_in_memory"`
	RateLimit         int      `yaml:"rate_limit"`
	MaxNickLength     int      `yaml:"max_nick_length"`
	MaxRoomNameLength int      `yaml:"max_room_name_length"`
	IsBootstrap       bool     `yaml:"is_bootstrap"`
	LogLevel          string   `yaml:"log_level"`
	LogFile           string   `yaml:"log_file"`
}

// Defaults returns the hard-coded baseline from spec.md §6.
func Defaults() Config {
	return Config{
		SSHPort:           2222,
		SSHHostKeyPath:    "./keys/host.key",
		P2PPort:           4001,
		BootstrapNodes:    nil,
		DefaultRoom:       "lobby",
		MaxMessageSize:    4096,
		MaxMessagesInMem:  100,
		RateLimit:         10,
		MaxNickLength:     32,
		MaxRoomNameLength: 32,
		IsBootstrap:       false,
		LogLevel:          "info",
		LogFile:           "",
	}
}

// Load builds a Config by applying, in increasing priority: built-in
// defaults, yamlPath (if non-empty and present on disk), then process
// environment variables. CLI flags are applied afterward by the caller,
// which assigns the returned Config's fields directly, since cobra owns
// flag parsing (cmd/whisperd).
func Load(yamlPath string) (Config, error) {
	cfg := Defaults()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, err
			}
		} else if !os.IsNotExist(err) {
			return Config{}, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SSH_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SSHPort = n
		}
	}
	if v := os.Getenv("SSH_HOST_KEY_PATH"); v != "" {
		c.SSHHostKeyPath = v
	}
	if v := os.Getenv("P2P_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.P2PPort = n
		}
	}
	if v := os.Getenv("BOOTSTRAP_NODES"); v != "" {
		c.BootstrapNodes = splitAndTrim(v)
	}
	if v := os.Getenv("DEFAULT_ROOM"); v != "" {
		c.DefaultRoom = v
	}
	if v := os.Getenv("MAX_MESSAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxMessageSize = n
		}
	}
	if v := os.Getenv("MAX_MESSAGES_IN_MEMORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxMessagesInMem = n
		}
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit = n
		}
	}
	if v := os.Getenv("MAX_NICK_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxNickLength = n
		}
	}
	if v := os.Getenv("MAX_ROOM_NAME_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRoomNameLength = n
		}
	}
	if v := os.Getenv("IS_BOOTSTRAP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.IsBootstrap = b
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.LogFile = v
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
