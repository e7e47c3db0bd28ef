// Command server wires together every component of the order-lifecycle
// engine (SPEC_FULL.md) and exposes the HTTP status/command surface.
// Grounded on the teacher's own main.go shape — load config, open the
// database, build repositories, build services, wire the HTTP router,
// run, shut down on signal — generalized from the teacher's mostly
// commented-out wiring into the agent's actual component graph.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	_ "github.com/lib/pq"

	"github.com/dome/adamant-tradebot/internal/api"
	"github.com/dome/adamant-tradebot/internal/api/handlers"
	"github.com/dome/adamant-tradebot/internal/cache"
	"github.com/dome/adamant-tradebot/internal/collector"
	"github.com/dome/adamant-tradebot/internal/command"
	"github.com/dome/adamant-tradebot/internal/config"
	"github.com/dome/adamant-tradebot/internal/exchange"
	"github.com/dome/adamant-tradebot/internal/ledger"
	"github.com/dome/adamant-tradebot/internal/liquidity"
	"github.com/dome/adamant-tradebot/internal/models"
	"github.com/dome/adamant-tradebot/internal/notify"
	"github.com/dome/adamant-tradebot/internal/obbuilder"
	"github.com/dome/adamant-tradebot/internal/pricemaker"
	"github.com/dome/adamant-tradebot/internal/pricewatcher"
	"github.com/dome/adamant-tradebot/internal/reconciler"
	"github.com/dome/adamant-tradebot/internal/repository"
	"github.com/dome/adamant-tradebot/internal/scheduler"
	"github.com/dome/adamant-tradebot/internal/tradeparams"
	"github.com/dome/adamant-tradebot/internal/websocket"
	"github.com/dome/adamant-tradebot/pkg/crypto"
	"github.com/dome/adamant-tradebot/pkg/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := utils.InitLogger(utils.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	defer log.Sync()
	sugar := log.WithComponent("main").Sugar()

	db, err := initDatabase(cfg)
	if err != nil {
		sugar.Fatalw("failed to connect to database", "err", err)
	}
	defer db.Close()
	sugar.Infow("connected to database")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persist the configured exchange account, encrypted at rest, so an
	// operator restarting the process can see which credentials are
	// live without re-reading environment variables.
	exchangeRepo := repository.NewExchangeRepository(db)

	// liveCreds defaults to the configured credentials, then is
	// replaced by the round trip through storage: encrypt, persist,
	// re-read, decrypt. That way the adapter is built from the same
	// ciphertext an operator inspecting exchange_accounts would see,
	// not straight from the process environment. A persist or decrypt
	// failure falls back to the configured credentials rather than
	// blocking startup.
	liveCreds := exchange.Credentials{
		APIKey:     cfg.Trading.APIKey,
		Secret:     cfg.Trading.APISecret,
		Passphrase: cfg.Trading.Passphrase,
	}
	if err := persistExchangeAccount(ctx, exchangeRepo, cfg); err != nil {
		sugar.Errorw("failed to persist exchange account, using configured credentials", "err", err)
	} else if decrypted, err := loadExchangeCredentials(ctx, exchangeRepo, cfg); err != nil {
		sugar.Errorw("failed to decrypt persisted exchange account, using configured credentials", "err", err)
	} else {
		liveCreds = decrypted
	}

	// creds resolves per-exchange credentials for the registry: the
	// agent's own exchange gets the live credentials above, every
	// other supported exchange gets none (the price watcher's market
	// source only ever needs public order-book reads).
	creds := func(name string) exchange.Credentials {
		if name != cfg.Trading.Exchange {
			return exchange.Credentials{}
		}
		return liveCreds
	}
	registry := exchange.NewRegistry(creds, sugar)
	defer registry.Close()

	adapter, err := registry.Adapter(ctx, cfg.Trading.Exchange)
	if err != nil {
		sugar.Fatalw("failed to build exchange adapter", "exchange", cfg.Trading.Exchange, "err", err)
	}

	markets, err := adapter.LoadMarkets(ctx)
	if err != nil {
		sugar.Fatalw("failed to load markets", "exchange", cfg.Trading.Exchange, "err", err)
	}
	if _, ok := markets[cfg.Trading.Pair]; !ok {
		// Fatal misconfiguration (spec §7): the pair isn't listed by
		// the exchange at all, so no component can ever place an
		// order. Disable activity by never starting it and exit.
		sugar.Fatalw("configured pair is not listed by exchange", "pair", cfg.Trading.Pair, "exchange", cfg.Trading.Exchange)
	}

	marketsCache := cache.NewMarketsCache()
	marketsCache.SetAll(markets)
	balanceCache := cache.NewBalanceCache(cfg.Trading.BalanceRefreshFreq)
	orderBookCache := cache.NewOrderBookCache(cfg.Trading.BalanceRefreshFreq)

	ledgerStore := ledger.New(db)

	paramsStore := tradeparams.New(db)
	if err := paramsStore.Load(ctx); err != nil {
		if err != tradeparams.ErrNotFound {
			sugar.Fatalw("failed to load trade params", "err", err)
		}
		defaults := tradeparams.Defaults()
		if usd, perr := decimal.NewFromString(cfg.Trading.AmountToConfirmUSD); perr == nil {
			defaults.AmountToConfirmUSD = usd
		}
		if err := paramsStore.Seed(ctx, defaults); err != nil {
			sugar.Fatalw("failed to seed trade params", "err", err)
		}
	}

	hub := websocket.NewHub(sugar)
	go hub.Run()
	sink := notify.New(hub)

	reconcile := reconciler.New(ledgerStore, adapter, sugar)
	col := collector.New(ledgerStore, adapter, balanceCache, sugar)

	// rates is left nil: external rate conversion against a fiat/
	// crypto price-info service is explicitly out of scope (spec §1);
	// the watcher treats a nil RateConverter as an identity pass-through,
	// so a numeric price-watcher range only behaves correctly when it is
	// already denominated in the traded pair's quote currency. adapter
	// doubles as the RateSource used to detect an escaped price under
	// the "fill" action.
	watcher := pricewatcher.New(paramsStore, registry, nil, adapter, cfg.Trading.Pair, sugar)
	go watcher.Run(ctx)

	builder := obbuilder.New(
		ledgerStore, reconcile, col, adapter,
		orderBookCache, balanceCache, marketsCache,
		watcher, paramsStore, sink,
		cfg.Trading.Pair, sugar,
	)
	liqProvider := liquidity.New(
		ledgerStore, reconcile, col, adapter,
		watcher, paramsStore, marketsCache,
		cfg.Trading.Pair, sugar,
	)
	maker := pricemaker.New(ledgerStore, adapter, watcher, cfg.Trading.Pair, sugar)
	watcher.SetPusher(maker)

	supervisor := scheduler.New(paramsStore, builder, liqProvider, sugar)
	go supervisor.Run(ctx)

	dispatcher := command.New(paramsStore, ledgerStore, col, maker, adapter, balanceCache, cfg.Trading.Pair, sugar)

	go refreshBalances(ctx, adapter, balanceCache, cfg.Trading.BalanceRefreshFreq, sugar)

	h := &handlers.Handler{
		Ledger:     ledgerStore,
		Params:     paramsStore,
		Balances:   balanceCache,
		Adapter:    adapter,
		Dispatcher: dispatcher,
		Pair:       cfg.Trading.Pair,
	}
	router := api.SetupRoutes(h, hub, sugar)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infow("starting server", "addr", server.Addr)
		var serveErr error
		if cfg.Server.UseHTTPS {
			serveErr = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			serveErr = server.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			sugar.Fatalw("server failed", "err", serveErr)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sugar.Infow("shutting down")

	// Flip the scheduler off first: in-flight ticks are allowed to
	// finish (spec §5 — the activity flag going false "does not cancel
	// in-flight ticks; it prevents further iterations from starting"),
	// but no new component tick should start once shutdown begins.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("server forced to shutdown", "err", err)
	}

	sugar.Infow("server exited")
}

// initDatabase opens and validates the Postgres connection pool.
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// persistExchangeAccount upserts the configured exchange's encrypted
// credentials, so an operator inspecting the exchange_accounts table
// sees the live account even before the adapter reports connectivity.
func persistExchangeAccount(ctx context.Context, repo *repository.ExchangeRepository, cfg *config.Config) error {
	encryptedSecret, err := crypto.EncryptWithKeyString(cfg.Trading.APISecret, cfg.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("encrypting exchange secret: %w", err)
	}
	encryptedPassphrase := ""
	if cfg.Trading.Passphrase != "" {
		encryptedPassphrase, err = crypto.EncryptWithKeyString(cfg.Trading.Passphrase, cfg.Security.EncryptionKey)
		if err != nil {
			return fmt.Errorf("encrypting exchange passphrase: %w", err)
		}
	}

	account := &models.ExchangeAccount{
		Name:       cfg.Trading.Exchange,
		APIKey:     cfg.Trading.APIKey,
		SecretKey:  encryptedSecret,
		Passphrase: encryptedPassphrase,
		Connected:  true,
	}
	return repo.UpsertCredentials(ctx, account)
}

// loadExchangeCredentials re-reads the account persistExchangeAccount
// just wrote and decrypts its secret/passphrase, closing the loop on
// the encrypt-at-rest round trip.
func loadExchangeCredentials(ctx context.Context, repo *repository.ExchangeRepository, cfg *config.Config) (exchange.Credentials, error) {
	account, err := repo.GetByName(ctx, cfg.Trading.Exchange)
	if err != nil {
		return exchange.Credentials{}, fmt.Errorf("loading persisted exchange account: %w", err)
	}

	secret, err := crypto.DecryptWithKeyString(account.SecretKey, cfg.Security.EncryptionKey)
	if err != nil {
		return exchange.Credentials{}, fmt.Errorf("decrypting exchange secret: %w", err)
	}
	passphrase := ""
	if account.Passphrase != "" {
		passphrase, err = crypto.DecryptWithKeyString(account.Passphrase, cfg.Security.EncryptionKey)
		if err != nil {
			return exchange.Credentials{}, fmt.Errorf("decrypting exchange passphrase: %w", err)
		}
	}

	return exchange.Credentials{
		APIKey:     account.APIKey,
		Secret:     secret,
		Passphrase: passphrase,
	}, nil
}

// refreshBalances is the single writer the balance cache's doc comment
// names: it owns the lazy TTL-driven refresh, while collector and
// obbuilder trigger eager Invalidate calls after a placement/cancel.
func refreshBalances(ctx context.Context, adapter exchange.Adapter, c *cache.BalanceCache, freq time.Duration, log *zap.SugaredLogger) {
	if freq <= 0 {
		freq = time.Minute
	}
	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	refresh := func() {
		entries, err := adapter.GetBalances(ctx, false)
		if err != nil {
			log.Warnw("balance refresh failed", "err", err)
			return
		}
		c.Set(entries)
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.Fresh() {
				refresh()
			}
		}
	}
}
