package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	aliashandler "paymail-bridge/internal/alias/handler"
	aliasservice "paymail-bridge/internal/alias/service"
	"paymail-bridge/internal/auth"
	"paymail-bridge/internal/auth/store/replay"
	"paymail-bridge/internal/chain"
	desthandler "paymail-bridge/internal/destination/handler"
	destmodels "paymail-bridge/internal/destination/models"
	destservice "paymail-bridge/internal/destination/service"
	httpapi "paymail-bridge/internal/http"
	"paymail-bridge/internal/keys"
	paymailhandler "paymail-bridge/internal/paymail/handler"
	"paymail-bridge/internal/platform/config"
	"paymail-bridge/internal/platform/kafka"
	"paymail-bridge/internal/platform/metrics"
	platformredis "paymail-bridge/internal/platform/redis"
	ratelimitmetrics "paymail-bridge/internal/ratelimit/metrics"
	ratelimitmw "paymail-bridge/internal/ratelimit/middleware"
	ratelimitmodels "paymail-bridge/internal/ratelimit/models"
	"paymail-bridge/internal/ratelimit/queue"
	"paymail-bridge/internal/ratelimit/store/bucket"
	receipthandler "paymail-bridge/internal/receipt/handler"
	receiptservice "paymail-bridge/internal/receipt/service"
	settlehandler "paymail-bridge/internal/settlement/handler"
	settlemetrics "paymail-bridge/internal/settlement/metrics"
	settleservice "paymail-bridge/internal/settlement/service"
	audit "paymail-bridge/pkg/platform/audit"
	"paymail-bridge/pkg/platform/audit/publisher"
	auditkafka "paymail-bridge/pkg/platform/audit/store/kafka"
	"paymail-bridge/pkg/platform/circuit"
)

const (
	auditBufferSize      = 4096
	auditTopicPartitions = 3
)

// app is the assembled bridge: the router plus the background work and resources
// whose lifetime is the process.
type app struct {
	router  http.Handler
	queue   *queue.Queue
	stores  *stores
	auditor *publisher.Publisher
	redis   *platformredis.Client
	kafka   *kgo.Client
}

// Close releases everything newApp opened, in reverse order. It tolerates a
// partially built app.
func (a *app) Close(logger *slog.Logger) {
	if a.auditor != nil {
		a.auditor.Close()
	}
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("failed to close redis", "error", err)
		}
	}
	if a.stores != nil {
		a.stores.Close(logger)
	}
}

func newApp(ctx context.Context, cfg config.Server, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close(logger)
		}
	}()

	if a.stores, err = openStores(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if a.redis, err = platformredis.New(ctx, cfg.Redis); err != nil {
		return nil, err
	}
	if a.redis != nil {
		a.stores.health["redis"] = a.redis.Health
	}

	auditStore := a.stores.audit
	if a.kafka, err = kafka.New(ctx, cfg.Kafka); err != nil {
		return nil, err
	}
	if a.kafka != nil {
		if err := kafka.EnsureTopic(ctx, a.kafka, cfg.Kafka.AuditTopic, auditTopicPartitions, 1); err != nil {
			logger.Warn("could not ensure audit topic", "topic", cfg.Kafka.AuditTopic, "error", err)
		}
		auditStore = auditkafka.New(a.kafka, cfg.Kafka.AuditTopic)
		a.stores.health["kafka"] = a.kafka.Ping
	}
	a.auditor = publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithSampler(publisher.NewSampler(cfg.AuditOpsSampleRate)),
		publisher.WithLogger(logger),
	)

	provider, err := keys.NewSDKProvider(cfg.Chain.Mainnet())
	if err != nil {
		return nil, err
	}

	platformMetrics := metrics.New()
	limiterMetrics := ratelimitmetrics.New()

	a.queue = queue.New(cfg.Chain.FetchQueueSize, cfg.Chain.FetchMinInterval,
		queue.WithLogger(logger),
		queue.WithMetrics(limiterMetrics),
	)
	woc := chain.NewWhatsOnChain(chain.WhatsOnChainURL(cfg.Chain.Network), cfg.Chain.WocAPIKey, a.queue,
		chain.WithBreaker(circuit.New("whatsonchain")),
		chain.WithLogger(logger),
	)
	arc := chain.NewARC(cfg.Chain.ArcURL, cfg.Chain.ArcAPIKey, logger)

	guard, err := auth.NewGuard(provider,
		auth.WithReplayCache(a.replayCache()),
		auth.WithAuditor(a.auditor),
		auth.WithMetrics(auth.NewMetrics(prometheus.DefaultRegisterer)),
		auth.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	aliases, err := aliasservice.New(a.stores.aliases, guard, provider, cfg.Host,
		aliasservice.WithAuditor(a.auditor),
		aliasservice.WithMetrics(platformMetrics),
		aliasservice.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	destinations, err := destservice.New(a.stores.destinations, aliases, provider,
		destservice.WithAuditor(a.auditor),
		destservice.WithMetrics(platformMetrics),
		destservice.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	settlement, err := settleservice.New(a.stores.receipts, destinations, arc, woc, woc, cfg.Host,
		settleservice.WithAuditor(a.auditor),
		settleservice.WithMetrics(settlemetrics.New()),
		settleservice.WithLogger(logger),
		settleservice.WithTimeout(cfg.SettlementTimeout),
	)
	if err != nil {
		return nil, err
	}
	receipts, err := receiptservice.New(a.stores.receipts, guard,
		receiptservice.WithAuditor(a.auditor),
		receiptservice.WithMetrics(platformMetrics),
		receiptservice.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	a.router = httpapi.NewRouter(httpapi.Deps{
		Logger:  logger,
		Metrics: platformMetrics,
		Limiter: a.limiter(cfg.RateLimit, limiterMetrics, a.auditor, logger),
		Public: []httpapi.Registrar{
			paymailhandler.New(aliases, paymailhandler.Config{
				Domain:    cfg.Host,
				BaseURL:   cfg.BaseURL,
				AvatarURL: cfg.AvatarURL,
				PubKey:    provider.IdentityKey(),
			}, logger),
			desthandler.New(destinations, cfg.Host, destmodels.Variant(cfg.DestinationVariant), logger),
		},
		Settlement: []httpapi.Registrar{
			settlehandler.New(settlement, cfg.Host, logger),
		},
		Wallet: []httpapi.Registrar{
			aliashandler.New(aliases, logger),
			receipthandler.New(receipts, logger),
		},
		Health: a.stores.health,
	})
	return a, nil
}

// replayCache shares claimed signatures across instances when Redis is configured.
func (a *app) replayCache() auth.ReplayCache {
	if a.redis != nil {
		return replay.NewRedisStore(a.redis.Client)
	}
	return replay.NewInMemoryStore()
}

// limiter counts in Redis when it is configured, falling back to memory while Redis
// is failing.
func (a *app) limiter(cfg config.RateLimitConfig, m *ratelimitmetrics.Metrics, auditor audit.Emitter, logger *slog.Logger) *ratelimitmw.Middleware {
	limits := map[ratelimitmodels.EndpointClass]ratelimitmodels.Limit{
		ratelimitmodels.ClassPublic:     {RequestsPerWindow: cfg.PublicLimit, Window: cfg.PublicWindow},
		ratelimitmodels.ClassSettlement: {RequestsPerWindow: cfg.SettlementLimit, Window: cfg.PublicWindow},
		ratelimitmodels.ClassWallet:     {RequestsPerWindow: cfg.WalletLimit, Window: cfg.PublicWindow},
	}
	opts := []ratelimitmw.Option{
		ratelimitmw.WithDisabled(cfg.Disabled),
		ratelimitmw.WithMetrics(m),
		ratelimitmw.WithAuditor(auditor),
		ratelimitmw.WithLogger(logger),
	}
	memory := bucket.NewInMemoryBucketStore()
	if a.redis == nil {
		return ratelimitmw.New(memory, limits, opts...)
	}
	opts = append(opts, ratelimitmw.WithFallback(memory, circuit.New("ratelimit")))
	return ratelimitmw.New(bucket.NewRedisBucketStore(a.redis.Client), limits, opts...)
}
