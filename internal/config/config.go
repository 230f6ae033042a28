// Package config builds the client configuration once at start up. The
// result is passed to constructors; nothing reads global settings later.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultLobbyHost      = "127.0.0.1"
	defaultLobbyPort      = 5502
	defaultTransport      = "tcp"
	defaultRequestTimeout = 5 * time.Second
	defaultDialTimeout    = 3 * time.Second
	defaultSettleDelay    = time.Second
	defaultLogoutTimeout  = 1500 * time.Millisecond
	defaultDownloadsDir   = "downloads"
	defaultInterpreter    = "python3"
	defaultConsulService  = "lobby"
	defaultNATSPrefix     = "lobbyclient"
	defaultLogLevel       = "warn"
)

// Game stdin modes.
const (
	// GameStdinDetach starts the game with no input; the room client keeps
	// the terminal.
	GameStdinDetach = "detach"
	// GameStdinInherit shares the terminal's input with the game.
	GameStdinInherit = "inherit"
)

// Environment variables read by Load and ResolveLobby.
const (
	EnvConfigFile  = "LOBBY_CLIENT_CONFIG"
	EnvLobbyHost   = "LOBBY_CONNECT_HOST"
	EnvLobbyPort   = "LOBBY_CONNECT_PORT"
	EnvTransport   = "LOBBY_TRANSPORT"
	EnvConsulAddr  = "CONSUL_HTTP_ADDR"
	EnvNATSURL     = "NATS_URL"
	EnvLogLevel    = "LOBBY_LOG_LEVEL"
	EnvDownloadDir = "LOBBY_DOWNLOADS_DIR"
)

type Endpoint struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Discovery struct {
	// ConsulAddr is a comma separated list of agents. Empty disables
	// discovery.
	ConsulAddr string `yaml:"consul_addr"`
	Service    string `yaml:"service"`
	// Mode is any, leader or specific.
	Mode       string `yaml:"mode"`
	InstanceID string `yaml:"instance_id"`
}

type Notify struct {
	// NATSURL enables lifecycle events when set.
	NATSURL string `yaml:"nats_url"`
	Prefix  string `yaml:"prefix"`
}

type Log struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

// Config is the whole client configuration.
type Config struct {
	// ServerIP pins the lobby host, as set by the deployment.
	ServerIP    string   `yaml:"server_ip"`
	PublicHosts []string `yaml:"public_hosts"`
	Lobby       Endpoint `yaml:"lobby_endpoint"`
	// RuntimePorts is the ports file written by a locally running lobby.
	RuntimePorts string `yaml:"runtime_ports"`
	// LobbyAddr, when set, skips every other endpoint rule.
	LobbyAddr string `yaml:"lobby_addr"`

	Transport      string        `yaml:"transport"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	SettleDelay    time.Duration `yaml:"settle_delay"`
	LogoutTimeout  time.Duration `yaml:"logout_timeout"`

	DownloadsDir string `yaml:"downloads_dir"`
	Interpreter  string `yaml:"interpreter"`
	GameStdin    string `yaml:"game_stdin"`

	Discovery Discovery `yaml:"discovery"`
	Notify    Notify    `yaml:"notify"`
	Log       Log       `yaml:"log"`

	// Runtime is the parsed RuntimePorts file, nil when absent.
	Runtime *RuntimePorts `yaml:"-"`
}

// RuntimePorts is what a local lobby writes when it starts.
type RuntimePorts struct {
	LobbyHost string `json:"lobby_host"`
	LobbyPort int    `json:"lobby_port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Lobby:          Endpoint{Host: defaultLobbyHost, Port: defaultLobbyPort},
		RuntimePorts:   "server/runtime_ports.json",
		Transport:      defaultTransport,
		RequestTimeout: defaultRequestTimeout,
		DialTimeout:    defaultDialTimeout,
		SettleDelay:    defaultSettleDelay,
		LogoutTimeout:  defaultLogoutTimeout,
		DownloadsDir:   defaultDownloadsDir,
		Interpreter:    defaultInterpreter,
		GameStdin:      GameStdinDetach,
		Discovery:      Discovery{Service: defaultConsulService, Mode: "any"},
		Notify:         Notify{Prefix: defaultNATSPrefix},
		Log:            Log{Level: defaultLogLevel},
	}
}

// Load builds the configuration from defaults, the YAML file at path (or
// $LOBBY_CLIENT_CONFIG) and the environment, in that order. A missing file
// is an error only when it was named explicitly.
func Load(path string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Default()

	if path == "" {
		path = getenv(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(getenv)
	if err := cfg.loadRuntimePorts(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvTransport); v != "" {
		c.Transport = v
	}
	if v := getenv(EnvConsulAddr); v != "" {
		c.Discovery.ConsulAddr = v
	}
	if v := getenv(EnvNATSURL); v != "" {
		c.Notify.NATSURL = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := getenv(EnvDownloadDir); v != "" {
		c.DownloadsDir = v
	}
}

func (c *Config) loadRuntimePorts() error {
	if c.RuntimePorts == "" {
		return nil
	}
	data, err := os.ReadFile(c.RuntimePorts)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read runtime ports: %w", err)
	}
	var rt RuntimePorts
	if err := json.Unmarshal(data, &rt); err != nil {
		return fmt.Errorf("parse runtime ports %s: %w", c.RuntimePorts, err)
	}
	c.Runtime = &rt
	return nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	switch c.Transport {
	case "tcp", "ws":
	default:
		return fmt.Errorf("transport must be tcp or ws, got %q", c.Transport)
	}
	switch c.GameStdin {
	case GameStdinDetach, GameStdinInherit:
	default:
		return fmt.Errorf("game_stdin must be detach or inherit, got %q", c.GameStdin)
	}
	if c.Lobby.Port < 0 || c.Lobby.Port > 65535 {
		return fmt.Errorf("lobby port %d out of range", c.Lobby.Port)
	}
	if c.RequestTimeout < 0 || c.SettleDelay < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.LobbyAddr != "" && !strings.Contains(c.LobbyAddr, ":") {
		return fmt.Errorf("lobby address %q must be host:port", c.LobbyAddr)
	}
	return nil
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}
