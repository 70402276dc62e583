// Package scanner runs sweeps: every tracked property in scope goes through the
// pricing provider under a shared concurrency ceiling, and each outcome is traced.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"hotel-rate-monitor/internal/logging"
	"hotel-rate-monitor/internal/models"
	"hotel-rate-monitor/internal/pricing"
	"hotel-rate-monitor/internal/provider"
	"hotel-rate-monitor/internal/ratelimit"
	"hotel-rate-monitor/internal/rooms"
	"hotel-rate-monitor/internal/snapshot"
)

// ErrSweepInProgress is returned when this process is already running a sweep
var ErrSweepInProgress = errors.New("a sweep is already running")

// PropertyStore reads scan targets and writes back what a scan learns
type PropertyStore interface {
	ListScanTargets(ctx context.Context, ownerID string) ([]models.TrackedProperty, error)
	SetExternalIdentifier(ctx context.Context, propertyID, identifier string) error
	MarkScanned(ctx context.Context, propertyID string, at time.Time) error
}

// SessionStore persists sessions and their append-only trace
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.ScanSession) error
	UpdateSession(ctx context.Context, session *models.ScanSession) error
	AppendOutcome(ctx context.Context, outcome *models.ScanOutcome) error
}

// SnapshotStore persists price snapshots
type SnapshotStore interface {
	Exists(ctx context.Context, propertyID string, capturedAt time.Time) (bool, error)
	// Create fails with snapshot.ErrAlreadyCaptured when the window is taken.
	Create(ctx context.Context, snap *models.PriceSnapshot) error
}

// Scope selects the properties of a sweep
type Scope struct {
	OwnerID string
}

// AllDue sweeps every owner
func AllDue() Scope { return Scope{} }

// Config holds sweep tuning
type Config struct {
	Concurrency        int
	PropertyTimeout    time.Duration
	SnapshotResolution time.Duration
	StayNights         int
	CheckInOffsetDays  int
	Adults             int
	DefaultCurrency    string
}

// Deps are the collaborators of an Orchestrator. Normalizer, Synonyms and
// Permits get defaults when nil.
type Deps struct {
	Properties PropertyStore
	Sessions   SessionStore
	Snapshots  SnapshotStore
	Provider   provider.Provider
	Normalizer *pricing.Normalizer
	Synonyms   rooms.Synonyms
	Permits    *ratelimit.Permits
}

// Orchestrator runs sweeps
type Orchestrator struct {
	deps    Deps
	cfg     Config
	now     func() time.Time
	log     *logrus.Entry
	running atomic.Bool
}

// New creates an orchestrator
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PropertyTimeout <= 0 {
		cfg.PropertyTimeout = 45 * time.Second
	}
	if cfg.SnapshotResolution <= 0 {
		cfg.SnapshotResolution = 24 * time.Hour
	}
	if cfg.StayNights < 1 {
		cfg.StayNights = 1
	}
	if cfg.Adults < 1 {
		cfg.Adults = 2
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	if deps.Normalizer == nil {
		deps.Normalizer = pricing.NewNormalizer(pricing.DefaultDotGroupingCurrencies)
	}
	if deps.Synonyms == nil {
		deps.Synonyms = rooms.DefaultSynonyms
	}
	if deps.Permits == nil {
		deps.Permits = ratelimit.NewPermits(cfg.Concurrency)
	}
	return &Orchestrator{
		deps: deps,
		cfg:  cfg,
		now:  time.Now,
		log:  logging.Component("scanner"),
	}
}

// RunSweep scans every property in scope and returns the finalized session.
// Per-property failures never fail the sweep; an error is returned only when
// the session itself cannot be created, listed or finalized, or with
// ErrSweepInProgress when another sweep of this orchestrator is running.
func (o *Orchestrator) RunSweep(ctx context.Context, scope Scope) (*models.ScanSession, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrSweepInProgress
	}
	defer o.running.Store(false)
	return o.sweep(ctx, scope)
}

// StartSweep claims the sweep slot and runs the sweep in the background,
// handing the result to done. It returns ErrSweepInProgress without starting
// anything when the slot is taken.
func (o *Orchestrator) StartSweep(ctx context.Context, scope Scope, done func(*models.ScanSession, error)) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrSweepInProgress
	}
	go func() {
		defer o.running.Store(false)
		session, err := o.sweep(ctx, scope)
		if done != nil {
			done(session, err)
		}
	}()
	return nil
}

// Running reports whether a sweep is in progress
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

func (o *Orchestrator) sweep(ctx context.Context, scope Scope) (*models.ScanSession, error) {
	session := &models.ScanSession{
		ID:         uuid.NewString(),
		OwnerScope: scope.OwnerID,
		Status:     models.ScanStatusPending,
	}
	if err := o.deps.Sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create scan session: %w", err)
	}
	log := o.log.WithFields(logrus.Fields{"session_id": session.ID, "owner_scope": scope.OwnerID})

	props, err := o.deps.Properties.ListScanTargets(ctx, scope.OwnerID)
	if err != nil {
		_ = session.Transition(models.ScanStatusRunning, o.now())
		_ = session.Transition(models.ScanStatusFailed, o.now())
		o.saveSession(ctx, session, log)
		return session, fmt.Errorf("list scan targets: %w", err)
	}

	session.Total = len(props)
	if err := session.Transition(models.ScanStatusRunning, o.now()); err != nil {
		return session, err
	}
	if err := o.deps.Sessions.UpdateSession(ctx, session); err != nil {
		return session, fmt.Errorf("start scan session: %w", err)
	}
	log.Infof("Sweep started: %d properties, concurrency %d", len(props), o.deps.Permits.Size())

	var (
		succeeded atomic.Int64
		failed    atomic.Int64
		wg        sync.WaitGroup
	)
	record := func(outcome *models.ScanOutcome) {
		if outcome.Success {
			succeeded.Add(1)
		} else {
			failed.Add(1)
		}
		if err := o.deps.Sessions.AppendOutcome(context.WithoutCancel(ctx), outcome); err != nil {
			log.WithError(err).WithField("property_id", outcome.PropertyID).Error("Failed to append scan outcome")
		}
	}

	for i := range props {
		release, err := o.deps.Permits.Acquire(ctx)
		if err != nil {
			for _, rest := range props[i:] {
				record(&models.ScanOutcome{
					SessionID:  session.ID,
					PropertyID: rest.ID,
					Reason:     "sweep canceled before scan started",
				})
			}
			log.WithError(err).Warnf("Sweep canceled with %d properties not started", len(props)-i)
			break
		}

		wg.Add(1)
		go func(prop models.TrackedProperty) {
			defer wg.Done()
			defer release()
			record(o.scanProperty(ctx, session.ID, prop))
		}(props[i])
	}
	wg.Wait()

	session.Succeeded = int(succeeded.Load())
	session.Failed = int(failed.Load())
	if err := session.Transition(models.FinalStatus(session.Succeeded, session.Failed), o.now()); err != nil {
		return session, err
	}
	if err := o.saveSession(ctx, session, log); err != nil {
		return session, fmt.Errorf("finalize scan session: %w", err)
	}

	log.Infof("Sweep %s: %d succeeded, %d failed", session.Status, session.Succeeded, session.Failed)
	return session, nil
}

func (o *Orchestrator) saveSession(ctx context.Context, session *models.ScanSession, log *logrus.Entry) error {
	err := o.deps.Sessions.UpdateSession(context.WithoutCancel(ctx), session)
	if err != nil {
		log.WithError(err).Error("Failed to save scan session")
	}
	return err
}

// scanProperty is the unit of work. Nothing it does escapes as an error or panic.
func (o *Orchestrator) scanProperty(parent context.Context, sessionID string, prop models.TrackedProperty) (outcome *models.ScanOutcome) {
	start := o.now()
	outcome = &models.ScanOutcome{SessionID: sessionID, PropertyID: prop.ID}
	log := o.log.WithFields(logrus.Fields{"session_id": sessionID, "property_id": prop.ID})

	ctx, cancel := context.WithTimeout(parent, o.cfg.PropertyTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			outcome.Success = false
			outcome.SnapshotID = nil
			outcome.Reason = fmt.Sprintf("internal error: %v", r)
			log.Errorf("Recovered from panic while scanning: %v", r)
		}
		outcome.DurationMs = o.now().Sub(start).Milliseconds()
	}()

	snapshotID, note, err := o.capture(ctx, &prop)
	if err != nil {
		outcome.Reason = o.failureReason(ctx, err)
		log.WithError(err).Warn("Property scan failed")
		return outcome
	}
	outcome.Success = true
	outcome.SnapshotID = snapshotID
	outcome.Reason = note
	return outcome
}

func (o *Orchestrator) failureReason(ctx context.Context, err error) string {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("timed out after %v: %v", o.cfg.PropertyTimeout, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Sprintf("sweep canceled: %v", err)
	default:
		return err.Error()
	}
}

func (o *Orchestrator) capture(ctx context.Context, prop *models.TrackedProperty) (*uint, string, error) {
	capturedAt := o.now().UTC().Truncate(o.cfg.SnapshotResolution)

	exists, err := o.deps.Snapshots.Exists(ctx, prop.ID, capturedAt)
	if err != nil {
		return nil, "", fmt.Errorf("snapshot lookup: %w", err)
	}
	if exists {
		return nil, alreadyCaptured(capturedAt), nil
	}

	if !prop.HasExternalIdentifier() {
		id, err := o.deps.Provider.ResolveIdentifier(ctx, provider.IdentifierQuery{
			Name:     prop.DisplayName,
			Location: prop.Location,
		})
		if err != nil {
			return nil, "", fmt.Errorf("identifier acquisition: %w", err)
		}
		if err := o.deps.Properties.SetExternalIdentifier(ctx, prop.ID, id); err != nil {
			return nil, "", fmt.Errorf("persist identifier: %w", err)
		}
		prop.ExternalIdentifier = id
	}

	quote, err := o.deps.Provider.FetchPrices(ctx, o.request(prop, capturedAt))
	if err != nil {
		return nil, "", fmt.Errorf("price fetch: %w", err)
	}
	if quote.Identifier != "" && quote.Identifier != prop.ExternalIdentifier {
		if err := o.deps.Properties.SetExternalIdentifier(ctx, prop.ID, quote.Identifier); err != nil {
			o.log.WithError(err).WithField("property_id", prop.ID).Warn("Failed to persist identifier from price response")
		}
	}

	snap, err := o.buildSnapshot(prop, quote, capturedAt)
	if err != nil {
		return nil, "", fmt.Errorf("parse: %w", err)
	}
	if err := o.deps.Snapshots.Create(ctx, snap); err != nil {
		if errors.Is(err, snapshot.ErrAlreadyCaptured) {
			return nil, alreadyCaptured(capturedAt), nil
		}
		return nil, "", fmt.Errorf("persist snapshot: %w", err)
	}

	if err := o.deps.Properties.MarkScanned(ctx, prop.ID, o.now().UTC()); err != nil {
		o.log.WithError(err).WithField("property_id", prop.ID).Warn("Failed to stamp last scan time")
	}
	id := snap.ID
	return &id, "", nil
}

func alreadyCaptured(at time.Time) string {
	return "already captured at " + at.Format(time.RFC3339)
}

func (o *Orchestrator) request(prop *models.TrackedProperty, capturedAt time.Time) provider.Request {
	day := time.Date(capturedAt.Year(), capturedAt.Month(), capturedAt.Day(), 0, 0, 0, 0, time.UTC)
	checkIn := day.AddDate(0, 0, o.cfg.CheckInOffsetDays)
	return provider.Request{
		PropertyID: prop.ID,
		ExternalID: prop.ExternalIdentifier,
		Name:       prop.DisplayName,
		Location:   prop.Location,
		CheckIn:    checkIn,
		CheckOut:   checkIn.AddDate(0, 0, o.cfg.StayNights),
		Adults:     o.cfg.Adults,
		Currency:   o.currency(prop),
	}
}

func (o *Orchestrator) currency(prop *models.TrackedProperty) string {
	if c := strings.TrimSpace(prop.PreferredCurrency); c != "" {
		return strings.ToUpper(c)
	}
	return o.cfg.DefaultCurrency
}

// buildSnapshot normalizes the quote. An unparseable top-line price falls back
// to the cheapest parseable room; with neither the quote is rejected.
func (o *Orchestrator) buildSnapshot(prop *models.TrackedProperty, quote *provider.Quote, capturedAt time.Time) (*models.PriceSnapshot, error) {
	currency := strings.ToUpper(strings.TrimSpace(quote.Currency))
	if currency == "" {
		currency = o.currency(prop)
	}
	source := quote.Source
	if source == "" {
		source = o.deps.Provider.Name()
	}

	req := o.request(prop, capturedAt)
	snap := &models.PriceSnapshot{
		PropertyID: prop.ID,
		CapturedAt: capturedAt,
		Currency:   currency,
		Source:     source,
		Rank:       quote.Rank,
		Metadata: datatypes.JSONMap{
			"check_in":  req.CheckIn.Format("2006-01-02"),
			"check_out": req.CheckOut.Format("2006-01-02"),
			"adults":    req.Adults,
		},
	}

	var cheapest *pricing.Price
	for _, oq := range quote.Offers {
		offer := models.RoomOffer{
			Name:       oq.Name,
			RawPrice:   oq.RawPrice,
			CapturedAt: capturedAt,
		}
		if p, err := o.deps.Normalizer.Normalize(oq.RawPrice, currency); err == nil {
			amount := p.Amount
			offer.Price = &amount
			offer.Currency = p.Currency
			// amounts in another currency are kept but never compared
			if p.Currency == currency && (cheapest == nil || p.Amount.LessThan(cheapest.Amount)) {
				pc := p
				cheapest = &pc
			}
		}
		if category, confidence, ok := o.deps.Synonyms.Classify(oq.Name); ok {
			offer.Category = category
			c := confidence
			offer.MatchConfidence = &c
		}
		snap.Offers = append(snap.Offers, offer)
	}

	top, err := o.deps.Normalizer.Normalize(quote.Price, currency)
	switch {
	case err == nil:
		snap.Price = decimalPtr(top.Amount)
		snap.Currency = top.Currency
	case cheapest != nil:
		snap.Price = decimalPtr(cheapest.Amount)
		snap.Currency = cheapest.Currency
	default:
		return nil, fmt.Errorf("no parseable price in quote (top-line %v, %d offers): %w", quote.Price, len(quote.Offers), pricing.ErrUnparseable)
	}
	return snap, nil
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
