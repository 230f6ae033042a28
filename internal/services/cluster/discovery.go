// Package cluster finds the lobby server through Consul when it is not
// reachable at a fixed address.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"

	consul "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

type DiscoveryMode int

const (
	// ModeAnyHealthy picks a random passing instance.
	ModeAnyHealthy DiscoveryMode = iota
	// ModeLeader picks the instance named by service/<name>/leader in KV.
	ModeLeader
	// ModeSpecific picks the instance with the given id or address.
	ModeSpecific
)

// ParseMode maps "any", "leader" and "specific" to a mode.
func ParseMode(s string) (DiscoveryMode, error) {
	switch s {
	case "", "any":
		return ModeAnyHealthy, nil
	case "leader":
		return ModeLeader, nil
	case "specific":
		return ModeSpecific, nil
	}
	return 0, fmt.Errorf("unknown discovery mode %q", s)
}

type DiscoveryOptions struct {
	Mode       DiscoveryMode
	SpecificID string
}

// ErrNoInstance means Consul knows no usable instance of the service.
var ErrNoInstance = errors.New("no healthy instance")

// Discover resolves serviceName to host:port through the agents in
// consulAddrs.
func Discover(ctx context.Context, serviceName, consulAddrs string, opts DiscoveryOptions, log *zap.Logger) (string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client, err := NewConsulClient(ctx, consulAddrs, log)
	if err != nil {
		return "", err
	}
	addr, err := discoverWithClient(ctx, client, serviceName, opts)
	if err != nil {
		return "", fmt.Errorf("discover %s: %w", serviceName, err)
	}
	log.Info("[Consul] discovered service", zap.String("service", serviceName), zap.String("addr", addr))
	return addr, nil
}

func discoverWithClient(ctx context.Context, client *consul.Client, serviceName string, opts DiscoveryOptions) (string, error) {
	switch opts.Mode {
	case ModeLeader:
		return discoverLeader(ctx, client, serviceName)
	case ModeSpecific:
		if opts.SpecificID == "" {
			return "", errors.New("specific discovery needs an instance id")
		}
		return discoverSpecific(ctx, client, serviceName, opts.SpecificID)
	default:
		return discoverAnyHealthy(ctx, client, serviceName)
	}
}

func queryOptions(ctx context.Context) *consul.QueryOptions {
	return (&consul.QueryOptions{}).WithContext(ctx)
}

func discoverLeader(ctx context.Context, client *consul.Client, serviceName string) (string, error) {
	leaderKey := fmt.Sprintf("service/%s/leader", serviceName)
	kvPair, _, err := client.KV().Get(leaderKey, queryOptions(ctx))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", leaderKey, err)
	}
	if kvPair == nil || len(kvPair.Value) == 0 {
		return "", fmt.Errorf("no leader elected: %w", ErrNoInstance)
	}
	return discoverSpecific(ctx, client, serviceName, string(kvPair.Value))
}

func discoverSpecific(ctx context.Context, client *consul.Client, serviceName, nodeID string) (string, error) {
	services, _, err := client.Health().Service(serviceName, "", true, queryOptions(ctx))
	if err != nil {
		return "", err
	}
	for _, s := range services {
		if s.Service.ID == nodeID || s.Service.Address == nodeID {
			return address(s), nil
		}
	}
	return "", fmt.Errorf("instance %q: %w", nodeID, ErrNoInstance)
}

func discoverAnyHealthy(ctx context.Context, client *consul.Client, serviceName string) (string, error) {
	services, _, err := client.Health().Service(serviceName, "", true, queryOptions(ctx))
	if err != nil {
		return "", err
	}
	if len(services) == 0 {
		return "", ErrNoInstance
	}
	return address(services[rand.Intn(len(services))]), nil
}

func address(s *consul.ServiceEntry) string {
	addr := s.Service.Address
	if addr == "" && s.Node != nil {
		addr = s.Node.Address
	}
	return net.JoinHostPort(addr, strconv.Itoa(s.Service.Port))
}
