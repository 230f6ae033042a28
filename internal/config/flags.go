package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Flags are the command line overrides. They win over the file and the
// environment, but only when given.
type Flags struct {
	fs *pflag.FlagSet

	configPath     string
	lobby          string
	transport      string
	downloads      string
	interpreter    string
	gameStdin      string
	settleDelay    time.Duration
	requestTimeout time.Duration
	consul         string
	nats           string
	logLevel       string
	logFile        string
	logFormat      string
}

// RegisterFlags defines the client flags on fs.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML config file (default $"+EnvConfigFile+")")
	fs.StringVar(&f.lobby, "lobby", "", "lobby address host:port, skips endpoint resolution")
	fs.StringVar(&f.transport, "transport", defaultTransport, "lobby transport: tcp or ws")
	fs.StringVar(&f.downloads, "downloads", defaultDownloadsDir, "directory downloaded games are unpacked in")
	fs.StringVar(&f.interpreter, "interpreter", defaultInterpreter, "program that runs a game's entry script")
	fs.StringVar(&f.gameStdin, "game-stdin", GameStdinDetach, "game input: detach, or inherit to share the terminal")
	fs.DurationVar(&f.settleDelay, "settle-delay", defaultSettleDelay, "how long commands stay paused after a game launch")
	fs.DurationVar(&f.requestTimeout, "request-timeout", defaultRequestTimeout, "bound on every lobby request")
	fs.StringVar(&f.consul, "consul", "", "consul agents used to discover the lobby")
	fs.StringVar(&f.nats, "nats", "", "NATS server for session events")
	fs.StringVar(&f.logLevel, "log-level", defaultLogLevel, "debug, info, warn or error")
	fs.StringVar(&f.logFile, "log-file", "", "append logs to this file instead of stderr")
	fs.StringVar(&f.logFormat, "log-format", "", "console or json (default: console on a terminal)")
	return f
}

// ConfigPath is the --config value.
func (f *Flags) ConfigPath() string { return f.configPath }

// Apply copies every flag that was set onto c and validates the result.
func (f *Flags) Apply(c *Config) error {
	f.fs.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "lobby":
			c.LobbyAddr = f.lobby
		case "transport":
			c.Transport = f.transport
		case "downloads":
			c.DownloadsDir = f.downloads
		case "interpreter":
			c.Interpreter = f.interpreter
		case "game-stdin":
			c.GameStdin = f.gameStdin
		case "settle-delay":
			c.SettleDelay = f.settleDelay
		case "request-timeout":
			c.RequestTimeout = f.requestTimeout
		case "consul":
			c.Discovery.ConsulAddr = f.consul
		case "nats":
			c.Notify.NATSURL = f.nats
		case "log-level":
			c.Log.Level = f.logLevel
		case "log-file":
			c.Log.File = f.logFile
		case "log-format":
			c.Log.Format = f.logFormat
		}
	})
	return c.Validate()
}
