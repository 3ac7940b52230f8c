package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mkwiatkowski/tradebot/internal/bus"
	rediscache "github.com/mkwiatkowski/tradebot/internal/cache/redis"
	"github.com/mkwiatkowski/tradebot/internal/config"
	"github.com/mkwiatkowski/tradebot/internal/copytrading"
	"github.com/mkwiatkowski/tradebot/internal/credential"
	"github.com/mkwiatkowski/tradebot/internal/crypto"
	"github.com/mkwiatkowski/tradebot/internal/domain"
	"github.com/mkwiatkowski/tradebot/internal/exchange/blowfin"
	"github.com/mkwiatkowski/tradebot/internal/feed"
	"github.com/mkwiatkowski/tradebot/internal/notify"
	"github.com/mkwiatkowski/tradebot/internal/risk"
	"github.com/mkwiatkowski/tradebot/internal/scheduler"
	"github.com/mkwiatkowski/tradebot/internal/signer"
	pgstore "github.com/mkwiatkowski/tradebot/internal/store/postgres"
	"github.com/mkwiatkowski/tradebot/internal/strategy"
	"github.com/mkwiatkowski/tradebot/internal/trading"
)

// Dependencies bundles every long-running task and shared collaborator the
// single-process runtime in app.go supervises. Built once by Wire.
type Dependencies struct {
	Bus *bus.Bus

	Reconciler  *scheduler.Reconciler
	Guardian    *risk.Guardian
	Replicator  *copytrading.Replicator
	PriceFeed   *trading.PriceTracker
	KlineFeeds  []*feed.KlineClient
	PrivateFeed *blowfin.WSClient
}

// Wire constructs every component named in SPEC_FULL.md's DOMAIN STACK
// table and returns the ones app.go's Run needs to supervise, plus a
// cleanup func that closes the Postgres pool and Redis client in reverse
// order. Grounded on the teacher's internal/app/wire.go construction order
// (stores -> caches -> crypto -> engine -> scheduler), generalized to this
// domain's component set.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pgClient, err := pgstore.New(ctx, pgstore.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("app: connecting to postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: running migrations: %w", err)
		}
	}

	redisClient, err := rediscache.New(ctx, rediscache.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("app: connecting to redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	strategyStore := pgstore.NewStrategyStore(pgClient.Pool())
	credentialRows := pgstore.NewCredentialStore(pgClient.Pool())
	followerStore := pgstore.NewFollowerStore(pgClient.Pool())

	riskCache := rediscache.NewRiskCache(redisClient)
	positionCache := rediscache.NewPositionFlagCache(redisClient)
	followerCache := rediscache.NewFollowerCache(redisClient)
	candleCache := rediscache.NewCandleCache(redisClient)

	masterKey, err := crypto.LoadMasterKeyPair(crypto.MasterKeyConfig{
		PublicKeyB64:      cfg.MasterKey.PublicKeyB64,
		PrivateKeyB64:     cfg.MasterKey.PrivateKeyB64,
		LocalFilePath:     cfg.MasterKey.LocalFilePath,
		LocalFilePassword: cfg.MasterKey.LocalFilePassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("app: loading master keypair: %w", err)
	}
	envelope := crypto.NewEnvelope(masterKey)
	creds := credential.New(credentialRows, envelope)

	b := bus.New()

	priceFeed := trading.NewPriceTracker(b)

	restClient := blowfin.NewClient(cfg.Exchange.Blowfin.RESTBaseURL)
	guard := risk.New(riskCache, logger)
	engine := trading.New(
		guard,
		creds,
		priceFeed,
		map[string]trading.ExchangeClient{"blowfin": restClient},
		logger,
	)

	guardian := risk.NewGuardian(guard, enabledUserLister{store: strategyStore}, newOperatorNotifier(cfg.Notify, logger), logger)

	registry := strategy.NewRegistry()
	strategy.RegisterDefaults(registry)

	replicator := copytrading.New(followerCache, followerStore, guard, engine, logger)
	replicatingEngine := copytrading.NewReplicatingEngine(engine, replicator, logger)

	shared := scheduler.SharedDeps{
		Bus:       b,
		Engine:    replicatingEngine,
		Risk:      guard,
		Positions: positionCache,
		Candles:   candleCache,
	}
	reconciler := scheduler.New(strategyStore, registry, shared, cfg.Scheduler.TickInterval.Duration, logger)

	klineFeeds := make([]*feed.KlineClient, 0, len(cfg.Feeds.Public))
	for _, fc := range cfg.Feeds.Public {
		secret := ""
		if fc.HMAC.Mode == "hmac" {
			secret = os.Getenv(fc.HMAC.SecretEnv)
		}
		klineFeeds = append(klineFeeds, feed.NewKlineClient(feed.Config{
			Name:     fc.Name,
			WSURL:    fc.WSURL,
			Symbol:   fc.Symbol,
			Interval: fc.Interval,
			HMAC: feed.HMACPolicy{
				Mode:          fc.HMAC.Mode,
				HeaderOrField: fc.HMAC.HeaderOrField,
				Secret:        secret,
			},
		}, b, logger))
	}

	platformCreds, err := creds.Get(ctx, cfg.Exchange.Blowfin.PlatformUserID, "blowfin")
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("app: resolving platform blowfin credentials: %w", err)
	}
	privateFeed := blowfin.NewWSClient(
		cfg.Exchange.Blowfin.WSURL,
		firstFeedSymbol(cfg),
		platformCreds.APIKey,
		platformCreds.Passphrase,
		signer.New(platformCreds.APISecret),
		b,
	)

	return &Dependencies{
		Bus:         b,
		Reconciler:  reconciler,
		Guardian:    guardian,
		Replicator:  replicator,
		PriceFeed:   priceFeed,
		KlineFeeds:  klineFeeds,
		PrivateFeed: privateFeed,
	}, cleanup, nil
}

// enabledUserLister adapts domain.StrategyStore into risk.ActiveUserLister
// by collecting the distinct UserID of every enabled row: any active
// strategy row implies its owner needs a drawdown sweep, so no separate
// "active users" table is needed.
type enabledUserLister struct {
	store domain.StrategyStore
}

func (l enabledUserLister) ListActiveUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := l.store.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{}, len(rows))
	users := make([]int64, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.UserID]; ok {
			continue
		}
		seen[r.UserID] = struct{}{}
		users = append(users, r.UserID)
	}
	return users, nil
}

// newOperatorNotifier builds the optional alert channel the Risk Guardian
// uses to announce a drawdown trip. Returns nil (not a *notify.Notifier
// wrapping zero senders) when neither channel is configured, so
// risk.Guardian's nil check skips notification entirely rather than calling
// into a Notifier with nothing to dispatch to.
func newOperatorNotifier(cfg config.NotifyConfig, logger *slog.Logger) risk.Notifier {
	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	if len(senders) == 0 {
		return nil
	}
	return notify.NewNotifier(senders, cfg.Events, logger)
}

// firstFeedSymbol picks the symbol the shared private order-book feed
// subscribes to: spec.md §6 scopes the private books5 feed to a single
// configured symbol rather than the per-strategy set, so the first
// configured public feed's symbol names it.
func firstFeedSymbol(cfg *config.Config) string {
	if len(cfg.Feeds.Public) == 0 {
		return ""
	}
	return cfg.Feeds.Public[0].Symbol
}
