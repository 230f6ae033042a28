package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", env(nil))
	require.NoError(t, err)
	assert.Equal(t, "tcp", cfg.Transport)
	assert.Equal(t, time.Second, cfg.SettleDelay)
	assert.Equal(t, 5502, cfg.Lobby.Port)
	assert.Equal(t, GameStdinDetach, cfg.GameStdin)
	assert.Nil(t, cfg.Runtime)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, "client.yaml", `
server_ip: 203.0.113.9
lobby_endpoint:
  host: 0.0.0.0
  port: 6000
transport: ws
settle_delay: 2500ms
discovery:
  consul_addr: consul-a:8500
notify:
  prefix: arcade
log:
  level: info
`)
	cfg, err := Load(path, env(map[string]string{EnvConsulAddr: "consul-b:8500", EnvLogLevel: "debug"}))
	require.NoError(t, err)

	assert.Equal(t, "203.0.113.9", cfg.ServerIP)
	assert.Equal(t, Endpoint{Host: "0.0.0.0", Port: 6000}, cfg.Lobby)
	assert.Equal(t, "ws", cfg.Transport)
	assert.Equal(t, 2500*time.Millisecond, cfg.SettleDelay)
	assert.Equal(t, "consul-b:8500", cfg.Discovery.ConsulAddr)
	assert.Equal(t, "lobby", cfg.Discovery.Service)
	assert.Equal(t, "arcade", cfg.Notify.Prefix)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	path := writeFile(t, "client.yaml", "interpreter: python3.12\n")
	cfg, err := Load("", env(map[string]string{EnvConfigFile: path}))
	require.NoError(t, err)
	assert.Equal(t, "python3.12", cfg.Interpreter)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), env(nil))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "transport: [tcp"), env(nil))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "udp.yaml", "transport: udp\n"), env(nil))
	assert.Error(t, err)
}

func TestLoad_RuntimePorts(t *testing.T) {
	rt := writeFile(t, "runtime_ports.json", `{"lobby_host":"0.0.0.0","lobby_port":7002}`)
	path := writeFile(t, "client.yaml", "runtime_ports: "+rt+"\n")

	cfg, err := Load(path, env(nil))
	require.NoError(t, err)
	require.NotNil(t, cfg.Runtime)
	assert.Equal(t, 7002, cfg.Runtime.LobbyPort)
}

func TestResolveLobby(t *testing.T) {
	never := func(string, time.Duration) bool { return false }
	always := func(string, time.Duration) bool { return true }
	runtime := &RuntimePorts{LobbyHost: "0.0.0.0", LobbyPort: 7002}

	tests := []struct {
		name  string
		cfg   Config
		env   map[string]string
		probe Probe
		want  string
	}{
		{
			name: "explicit address",
			cfg:  Config{LobbyAddr: "lobby.example:9000", ServerIP: "1.2.3.4"},
			env:  map[string]string{EnvLobbyHost: "ignored"},
			want: "lobby.example:9000",
		},
		{
			name: "env host and port",
			cfg:  Config{Runtime: runtime, ServerIP: "1.2.3.4"},
			env:  map[string]string{EnvLobbyHost: "10.1.1.1", EnvLobbyPort: "8000"},
			want: "10.1.1.1:8000",
		},
		{
			name: "env host takes runtime port",
			cfg:  Config{Runtime: runtime, Lobby: Endpoint{Port: 6000}},
			env:  map[string]string{EnvLobbyHost: "10.1.1.1"},
			want: "10.1.1.1:7002",
		},
		{
			name: "env host takes config port",
			cfg:  Config{Lobby: Endpoint{Port: 6000}},
			env:  map[string]string{EnvLobbyHost: "10.1.1.1"},
			want: "10.1.1.1:6000",
		},
		{
			name: "runtime with server ip",
			cfg:  Config{Runtime: runtime, ServerIP: "1.2.3.4"},
			want: "1.2.3.4:7002",
		},
		{
			name:  "runtime on loopback",
			cfg:   Config{Runtime: runtime},
			probe: always,
			want:  "127.0.0.1:7002",
		},
		{
			name:  "runtime host, wildcard becomes loopback",
			cfg:   Config{Runtime: runtime},
			probe: never,
			want:  "127.0.0.1:7002",
		},
		{
			name:  "runtime host with forced port",
			cfg:   Config{Runtime: &RuntimePorts{LobbyHost: "10.9.9.9", LobbyPort: 7002}},
			env:   map[string]string{EnvLobbyPort: "7100"},
			probe: never,
			want:  "10.9.9.9:7100",
		},
		{
			name: "server ip",
			cfg:  Config{ServerIP: "1.2.3.4", Lobby: Endpoint{Host: "ignored", Port: 6000}},
			want: "1.2.3.4:6000",
		},
		{
			name: "wildcard host uses first public host",
			cfg:  Config{Lobby: Endpoint{Host: "0.0.0.0", Port: 6000}, PublicHosts: []string{"203.0.113.9", "x"}},
			want: "203.0.113.9:6000",
		},
		{
			name: "wildcard host without public hosts",
			cfg:  Config{Lobby: Endpoint{Host: "0.0.0.0"}},
			want: "127.0.0.1:5502",
		},
		{
			name: "forced port only",
			cfg:  Config{Lobby: Endpoint{Host: "lobby.local", Port: 6000}},
			env:  map[string]string{EnvLobbyPort: "6100"},
			want: "lobby.local:6100",
		},
		{
			name: "unparsable env port with host falls through",
			cfg:  Config{Lobby: Endpoint{Host: "lobby.local", Port: 6000}},
			env:  map[string]string{EnvLobbyHost: "10.1.1.1", EnvLobbyPort: "abc"},
			want: "lobby.local:6000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.ResolveLobby(env(tt.env), tt.probe))
		})
	}
}

func TestFlags_OverrideOnlyWhenSet(t *testing.T) {
	cfg := Default()
	cfg.Transport = "ws"
	cfg.Log.Level = "info"

	fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
	flags := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", "c.yaml", "--lobby", "10.0.0.1:5502", "--settle-delay", "3s"}))

	require.NoError(t, flags.Apply(cfg))
	assert.Equal(t, "c.yaml", flags.ConfigPath())
	assert.Equal(t, "10.0.0.1:5502", cfg.LobbyAddr)
	assert.Equal(t, 3*time.Second, cfg.SettleDelay)
	// not given on the command line, so the file value stays
	assert.Equal(t, "ws", cfg.Transport)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestFlags_ApplyValidates(t *testing.T) {
	fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
	flags := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--transport", "quic"}))
	assert.Error(t, flags.Apply(Default()))
}

func TestGameStdin(t *testing.T) {
	path := writeFile(t, "client.yaml", "game_stdin: inherit\n")
	cfg, err := Load(path, env(nil))
	require.NoError(t, err)
	assert.Equal(t, GameStdinInherit, cfg.GameStdin)

	fs := pflag.NewFlagSet("client", pflag.ContinueOnError)
	flags := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--game-stdin", "detach"}))
	require.NoError(t, flags.Apply(cfg))
	assert.Equal(t, GameStdinDetach, cfg.GameStdin)

	cfg.GameStdin = "pty"
	assert.Error(t, cfg.Validate())
}
