package cluster

import (
	"context"
	"fmt"
	"strings"

	consul "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// NewConsulClient tries each address of a comma separated list and returns
// a client for the first agent that knows its raft leader.
func NewConsulClient(ctx context.Context, addrs string, log *zap.Logger) (*consul.Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	for _, node := range strings.Split(addrs, ",") {
		node = strings.TrimSpace(node)
		if node == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cfg := consul.DefaultConfig()
		cfg.Address = node

		client, err := consul.NewClient(cfg)
		if err != nil {
			log.Warn("[Consul] cannot create client", zap.String("addr", node), zap.Error(err))
			continue
		}
		if _, err := client.Status().LeaderWithQueryOptions((&consul.QueryOptions{}).WithContext(ctx)); err != nil {
			log.Warn("[Consul] agent did not answer", zap.String("addr", node), zap.Error(err))
			continue
		}

		log.Debug("[Consul] connected", zap.String("addr", node))
		return client, nil
	}
	return nil, fmt.Errorf("no consul agent available at %q", addrs)
}
