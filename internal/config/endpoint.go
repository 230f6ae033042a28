package config

import (
	"net"
	"strconv"
	"time"
)

const loopback = "127.0.0.1"

// Probe reports whether something accepts connections at addr.
type Probe func(addr string, timeout time.Duration) bool

// TCPProbe dials addr once.
func TCPProbe(addr string, timeout time.Duration) bool {
	c, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	c.Close()
	return true
}

// ResolveLobby picks the lobby address. In order:
//
//   - LobbyAddr when set;
//   - $LOBBY_CONNECT_HOST with $LOBBY_CONNECT_PORT;
//   - $LOBBY_CONNECT_HOST with the runtime or configured port;
//   - with a runtime ports file: server_ip, then a lobby listening on
//     loopback, then the runtime host;
//   - server_ip with the configured port;
//   - the configured host, where 0.0.0.0 means the first public host.
//
// $LOBBY_CONNECT_PORT alone overrides the port of the last three rules.
func (c *Config) ResolveLobby(getenv func(string) string, probe Probe) string {
	host, port := c.resolveLobby(getenv, probe)
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (c *Config) resolveLobby(getenv func(string) string, probe Probe) (string, int) {
	if c.LobbyAddr != "" {
		host, portStr, err := net.SplitHostPort(c.LobbyAddr)
		if err == nil {
			return host, atoiOr(portStr, defaultLobbyPort)
		}
	}

	configPort := c.Lobby.Port
	if configPort == 0 {
		configPort = defaultLobbyPort
	}

	envHost, envPort := getenv(EnvLobbyHost), getenv(EnvLobbyPort)
	forcedPort := 0
	switch {
	case envHost != "" && envPort != "":
		if p := atoiOr(envPort, 0); p > 0 {
			return envHost, p
		}
	case envHost != "":
		if c.Runtime != nil && c.Runtime.LobbyPort != 0 {
			return envHost, c.Runtime.LobbyPort
		}
		return envHost, configPort
	case envPort != "":
		forcedPort = atoiOr(envPort, defaultLobbyPort)
	}

	if c.Runtime != nil {
		port := firstNonZero(forcedPort, c.Runtime.LobbyPort, configPort)
		if c.ServerIP != "" {
			return c.ServerIP, port
		}
		if probe != nil && probe(net.JoinHostPort(loopback, strconv.Itoa(port)), 500*time.Millisecond) {
			return loopback, port
		}
		host := firstNonEmpty(c.Runtime.LobbyHost, c.Lobby.Host, loopback)
		if host == "0.0.0.0" {
			host = loopback
		}
		return host, port
	}

	port := firstNonZero(forcedPort, configPort)
	if c.ServerIP != "" {
		return c.ServerIP, port
	}

	host := firstNonEmpty(c.Lobby.Host, loopback)
	if host == "0.0.0.0" {
		host = loopback
		if len(c.PublicHosts) > 0 {
			host = c.PublicHosts[0]
		}
	}
	return host, port
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
