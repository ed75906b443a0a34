package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// MonitorRedis instruments the client with tracing, metrics and debug logging of every command.
func MonitorRedis(r redis.UniversalClient) error {
	if err := redisotel.InstrumentTracing(r); err != nil {
		return fmt.Errorf("instrument tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(r); err != nil {
		return fmt.Errorf("instrument metrics: %w", err)
	}
	r.AddHook(redisLog{})
	return nil
}

type redisLog struct{}

func (redisLog) DialHook(hook redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := hook(ctx, network, addr)
		if err != nil {
			slog.ErrorContext(ctx, fmt.Sprintf("redis: dial %s %s failed", network, addr), "error", err)
			return nil, err
		}
		slog.InfoContext(ctx, fmt.Sprintf("redis: connected %s %s", network, addr))
		return conn, nil
	}
}

func (redisLog) ProcessHook(hook redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := hook(ctx, cmd)
		if err != nil && err != redis.Nil {
			slog.ErrorContext(ctx, fmt.Sprintf("redis: command failed: <%s>", cmd.Name()), "error", err)
			return err
		}
		slog.DebugContext(ctx, fmt.Sprintf("redis: processed <%s>", cmd.Name()))
		return err
	}
}

func (redisLog) ProcessPipelineHook(hook redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := hook(ctx, cmds)
		if err != nil {
			slog.ErrorContext(ctx, fmt.Sprintf("redis: pipeline of %d commands failed", len(cmds)), "error", err)
			return err
		}
		slog.DebugContext(ctx, fmt.Sprintf("redis: processed pipeline of %d commands", len(cmds)))
		return nil
	}
}
