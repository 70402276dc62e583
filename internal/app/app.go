// Package app wires configuration into the running services shared by the
// API server and the CLI.
package app

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"hotel-rate-monitor/internal/config"
	"hotel-rate-monitor/internal/database"
	"hotel-rate-monitor/internal/importer"
	"hotel-rate-monitor/internal/logging"
	"hotel-rate-monitor/internal/pricing"
	"hotel-rate-monitor/internal/provider"
	"hotel-rate-monitor/internal/ratelimit"
	"hotel-rate-monitor/internal/reconcile"
	"hotel-rate-monitor/internal/rooms"
	"hotel-rate-monitor/internal/scanner"
	"hotel-rate-monitor/internal/search"
	"hotel-rate-monitor/internal/snapshot"
)

// App holds the wired services
type App struct {
	Config       *config.Config
	DB           *database.GormDB
	Store        *database.Store
	Snapshots    *snapshot.Service
	Limiter      *ratelimit.WindowLimiter
	Breaker      *provider.CircuitBreaker
	Permits      *ratelimit.Permits
	Provider     provider.Provider
	Normalizer   *pricing.Normalizer
	Orchestrator *scanner.Orchestrator
	Reconciler   *reconcile.Reconciler
	Selector     *rooms.Selector
	Importer     *importer.Importer
}

// New connects to the database, migrates the schema and builds every service
func New(cfg *config.Config) (*App, error) {
	log := logging.Component("app")

	gdb, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Database.Type, err)
	}
	if err := gdb.InitSchema(); err != nil {
		_ = gdb.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	log.Infof("Connected to %s and migrated schema", cfg.Database.Type)

	return Build(cfg, gdb), nil
}

// Build wires services on top of an open database
func Build(cfg *config.Config, gdb *database.GormDB) *App {
	log := logging.Component("app")

	a := &App{
		Config:     cfg,
		DB:         gdb,
		Store:      database.NewStore(gdb),
		Snapshots:  snapshot.NewService(gdb.DB(), cfg.Scanner.GetSnapshotResolution()),
		Normalizer: pricing.NewNormalizer(cfg.Pricing.DotGroupingCurrencies),
		Permits:    ratelimit.NewPermits(cfg.Scanner.Concurrency),
	}

	a.Limiter = ratelimit.NewWindowLimiter(
		cfg.RateLimit.RequestsPerMinute,
		cfg.RateLimit.RequestsPerHour,
		cfg.RateLimit.RequestsPerDay,
		cfg.RateLimit.Enabled,
	)
	log.WithFields(logrus.Fields{
		"per_minute": cfg.RateLimit.RequestsPerMinute,
		"per_hour":   cfg.RateLimit.RequestsPerHour,
		"per_day":    cfg.RateLimit.RequestsPerDay,
		"enabled":    cfg.RateLimit.Enabled,
	}).Info("Rate limiter initialized")

	synonyms := rooms.DefaultSynonyms.Merge(cfg.Rooms.Synonyms)

	a.Breaker = provider.NewCircuitBreaker(cfg.Provider.Name, cfg.Provider.FailureThreshold, cfg.Provider.GetCooldown())
	a.Provider = newProvider(cfg.Provider, a.Breaker, a.Limiter)

	a.Orchestrator = scanner.New(scanner.Deps{
		Properties: a.Store,
		Sessions:   a.Store,
		Snapshots:  a.Snapshots,
		Provider:   a.Provider,
		Normalizer: a.Normalizer,
		Synonyms:   synonyms,
		Permits:    a.Permits,
	}, scanner.Config{
		Concurrency:        cfg.Scanner.Concurrency,
		PropertyTimeout:    cfg.Scanner.GetPropertyTimeout(),
		SnapshotResolution: cfg.Scanner.GetSnapshotResolution(),
		StayNights:         cfg.Scanner.StayNights,
		CheckInOffsetDays:  cfg.Scanner.CheckInOffsetDays,
		Adults:             cfg.Scanner.Adults,
		DefaultCurrency:    cfg.Pricing.DefaultCurrency,
	})

	a.Reconciler = reconcile.New(a.Store, reconcile.Config{MaxDuplicates: cfg.Reconcile.MaxDuplicates})

	opts := []rooms.Option{rooms.WithNormalizer(a.Normalizer), rooms.WithSynonyms(synonyms)}
	if ms := cfg.Search.Meilisearch; ms.Host != "" {
		index := search.NewCategoryIndex(ms.Host, ms.APIKey, ms.CategoryIndex)
		if err := index.InitIndex(); err != nil {
			log.WithError(err).Warn("Failed to initialize category index; semantic room matching disabled")
		} else {
			if err := index.IndexCategories(synonyms); err != nil {
				log.WithError(err).Warn("Failed to index room categories")
			}
			opts = append(opts, rooms.WithIndex(index, cfg.Rooms.SimilarityThreshold, cfg.Rooms.CandidateLimit))
			log.Infof("Semantic room matching enabled (index %s)", ms.CategoryIndex)
		}
	}
	a.Selector = rooms.NewSelector(opts...)

	a.Importer = importer.New(a.Store, cfg.Pricing.DefaultCurrency)
	return a
}

func newProvider(cfg config.ProviderConfig, breaker *provider.CircuitBreaker, limiter *ratelimit.WindowLimiter) provider.Provider {
	if cfg.Kind == "page" {
		var fetcher provider.Fetcher
		if cfg.Page.Headless {
			fetcher = provider.NewBrowserFetcher(cfg.Name, cfg.Page.BrowserPath, cfg.UserAgent, cfg.Page.WaitSelector, breaker, limiter)
		} else {
			fetcher = provider.NewHTTPFetcher(cfg.Name, cfg.UserAgent, cfg.GetTimeout(), cfg.GetRetryDelay(), breaker, limiter)
		}
		return provider.NewPageProvider(provider.PageConfig{
			Name:          cfg.Name,
			PriceURL:      cfg.Page.PriceURL,
			IdentifierURL: cfg.Page.IdentifierURL,
			Selectors: provider.PageSelectors{
				Offer:          cfg.Page.Offer,
				OfferName:      cfg.Page.OfferName,
				OfferPrice:     cfg.Page.OfferPrice,
				TopPrice:       cfg.Page.TopPrice,
				Currency:       cfg.Page.Currency,
				Identifier:     cfg.Page.Identifier,
				IdentifierAttr: cfg.Page.IdentifierAttr,
			},
		}, fetcher)
	}

	return provider.NewHTTPProvider(provider.HTTPConfig{
		Name:       cfg.Name,
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.GetTimeout(),
		RetryDelay: cfg.GetRetryDelay(),
	}, breaker, limiter)
}

// Close releases the database connection
func (a *App) Close() error {
	return a.DB.Close()
}
