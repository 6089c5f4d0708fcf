package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"warden/internal/gate"
	"warden/internal/maintenance"
	"warden/internal/platform/config"
	"warden/internal/platform/postgres"
	platformredis "warden/internal/platform/redis"
	sessionmemory "warden/internal/sessions/store/memory"
	sessionredis "warden/internal/sessions/store/redis"
	throttleservice "warden/internal/throttle/service"
	throttlefallback "warden/internal/throttle/store/fallback"
	throttlememory "warden/internal/throttle/store/memory"
	throttlepostgres "warden/internal/throttle/store/postgres"
	throttleredis "warden/internal/throttle/store/redis"
	tokenservice "warden/internal/tokens/service"
	tokenmemory "warden/internal/tokens/store/memory"
	tokenpostgres "warden/internal/tokens/store/postgres"
	tokenredis "warden/internal/tokens/store/redis"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/audit/publishers/amqp"
	"warden/pkg/platform/audit/publishers/async"
	"warden/pkg/platform/audit/publishers/kafka"
	auditmemory "warden/pkg/platform/audit/store/memory"
	auditpostgres "warden/pkg/platform/audit/store/postgres"
	"warden/pkg/platform/circuit"
)

// infra holds the shared connections opened at startup.
type infra struct {
	redis *platformredis.Client
	db    *sql.DB
}

func openInfra(ctx context.Context, cfg *config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}
	if cfg.Storage.Backend == config.BackendRedis {
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		in.redis = client
	}

	if cfg.Storage.Backend == config.BackendPostgres || cfg.Events.Sink == config.SinkPostgres {
		db, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			in.Close()
			return nil, err
		}
		in.db = db
		if cfg.Postgres.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				in.Close()
				return nil, err
			}
			log.Info("postgres migrations applied")
		}
	}
	return in, nil
}

// Ready pings every open backend.
func (in *infra) Ready(ctx context.Context) error {
	var errs []error
	if in.redis != nil {
		if err := in.redis.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if in.db != nil {
		if err := in.db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (in *infra) Close() {
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}

type stores struct {
	throttle throttleservice.Store
	tokens   tokenservice.Store
	sessions gate.SessionStore
	// pruner is nil when the throttle backend expires records itself.
	pruner maintenance.ThrottlePruner
}

func buildStores(cfg *config.Config, in *infra, log *slog.Logger) (*stores, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		throttle := throttlememory.New()
		return &stores{
			throttle: throttle,
			tokens:   tokenmemory.New(),
			sessions: sessionmemory.New(cfg.Sessions.TTL),
			pruner:   throttle,
		}, nil

	case config.BackendRedis:
		s := &stores{
			throttle: throttleredis.New(in.redis.Client),
			tokens:   tokenredis.New(in.redis.Client, tokenredis.WithRetention(cfg.Tokens.ExpiredRetention)),
			sessions: sessionredis.New(in.redis.Client, cfg.Sessions.TTL),
		}
		if cfg.Storage.Fallback {
			local := throttlememory.New()
			s.throttle = throttlefallback.New(s.throttle, local, circuit.New("throttle-store"), log)
			s.pruner = local
		}
		return s, nil

	case config.BackendPostgres:
		primary := throttlepostgres.New(in.db)
		s := &stores{
			throttle: primary,
			tokens:   tokenpostgres.New(in.db),
			// Sessions are short-lived and stay process-local on this backend.
			sessions: sessionmemory.New(cfg.Sessions.TTL),
			pruner:   primary,
		}
		if cfg.Storage.Fallback {
			local := throttlememory.New()
			s.throttle = throttlefallback.New(primary, local, circuit.New("throttle-store"), log)
			s.pruner = prunerSet{primary, local}
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// prunerSet sweeps several throttle stores in one pass.
type prunerSet []maintenance.ThrottlePruner

func (p prunerSet) DeleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	total := 0
	var errs []error
	for _, pr := range p {
		n, err := pr.DeleteStale(ctx, cutoff)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// events is the gate's publisher plus whatever must be run or closed.
type events struct {
	publisher audit.Publisher
	async     *async.Publisher
	closers   []func()
}

func (e *events) Close() {
	for _, c := range e.closers {
		c()
	}
}

func buildPublisher(ctx context.Context, cfg *config.Config, in *infra, reg prometheus.Registerer, log *slog.Logger) (*events, error) {
	ev := &events{}
	var sink audit.Publisher

	switch cfg.Events.Sink {
	case config.SinkNone:
		ev.publisher = audit.Nop{}
		return ev, nil
	case config.SinkMemory:
		ev.publisher = auditmemory.NewInMemoryStore()
		return ev, nil
	case config.SinkKafka:
		p, err := kafka.New(ctx, kafka.Config{
			Brokers:           cfg.Events.Kafka.Brokers,
			Topic:             cfg.Events.Kafka.Topic,
			ClientID:          cfg.Events.Kafka.ClientID,
			Partitions:        cfg.Events.Kafka.Partitions,
			ReplicationFactor: cfg.Events.Kafka.ReplicationFactor,
		}, log)
		if err != nil {
			return nil, err
		}
		ev.closers = append(ev.closers, p.Close)
		sink = p
	case config.SinkAMQP:
		p, err := amqp.New(cfg.Events.AMQP.URL, cfg.Events.AMQP.Exchange, log)
		if err != nil {
			return nil, err
		}
		ev.closers = append(ev.closers, p.Close)
		sink = p
	case config.SinkPostgres:
		sink = auditpostgres.New(in.db)
	default:
		return nil, fmt.Errorf("unknown event sink %q", cfg.Events.Sink)
	}

	ev.async = async.New(sink,
		async.WithLogger(log),
		async.WithMetrics(async.NewMetrics(reg)),
		async.WithCapacity(cfg.Events.BufferSize),
		async.WithBatchSize(cfg.Events.BatchSize),
		async.WithFlushInterval(cfg.Events.FlushInterval),
		async.WithBreaker(circuit.New("event-sink")),
	)
	ev.publisher = ev.async
	return ev, nil
}
