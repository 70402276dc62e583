// Package reconcile folds duplicate tracked properties, rows of one owner that
// resolved to the same provider identifier, into a single survivor.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"hotel-rate-monitor/internal/logging"
	"hotel-rate-monitor/internal/models"
)

// Store is the persistence the reconciler needs
type Store interface {
	ListIdentifiedProperties(ctx context.Context, ownerID string) ([]models.TrackedProperty, error)
	CountSnapshots(ctx context.Context, propertyID string) (int64, error)
	RepointSnapshots(ctx context.Context, fromID, toID string) (int64, error)
	SoftDeleteIfUnreferenced(ctx context.Context, propertyID string) (bool, error)
	RecordMerge(ctx context.Context, entry *models.MergeLog) error
}

// Config holds reconciliation limits
type Config struct {
	// MaxDuplicates aborts a run that would merge more rows than this (0 = no limit)
	MaxDuplicates int
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{MaxDuplicates: 1000}
}

// ReconciliationConflict marks a group that cannot be merged automatically
type ReconciliationConflict struct {
	OwnerID            string   `json:"owner_id"`
	ExternalIdentifier string   `json:"external_identifier"`
	PropertyIDs        []string `json:"property_ids"`
	Reason             string   `json:"reason"`
}

func (c ReconciliationConflict) Error() string {
	return fmt.Sprintf("reconciliation conflict for owner %s identifier %s: %s (%s)",
		c.OwnerID, c.ExternalIdentifier, c.Reason, strings.Join(c.PropertyIDs, ", "))
}

// Merge describes one duplicate folded, or planned to be folded, into its survivor
type Merge struct {
	OwnerID            string `json:"owner_id"`
	ExternalIdentifier string `json:"external_identifier"`
	DuplicateID        string `json:"duplicate_id"`
	SurvivorID         string `json:"survivor_id"`
	SnapshotsMoved     int64  `json:"snapshots_moved"`
}

// MergeReport holds the result of a reconciliation run
type MergeReport struct {
	GroupsFound        int                      `json:"groups_found"`
	GroupsMerged       int                      `json:"groups_merged"`
	SnapshotsRepointed int64                    `json:"snapshots_repointed"`
	DuplicatesDeleted  int                      `json:"duplicates_deleted"`
	Merges             []Merge                  `json:"merges,omitempty"`
	Conflicts          []ReconciliationConflict `json:"conflicts,omitempty"`
	Errors             []string                 `json:"errors,omitempty"`
	DryRun             bool                     `json:"dry_run"`
	ExecutedAt         time.Time                `json:"executed_at"`
}

// Reconciler merges duplicate property rows without losing snapshot history
type Reconciler struct {
	store Store
	cfg   Config
	now   func() time.Time
	log   *logrus.Entry
}

// New creates a reconciler
func New(store Store, cfg Config) *Reconciler {
	return &Reconciler{
		store: store,
		cfg:   cfg,
		now:   time.Now,
		log:   logging.Component("reconcile"),
	}
}

// Reconcile merges duplicates of one owner, or of all owners when ownerID is empty.
// Running it again on a reconciled store is a no-op.
func (r *Reconciler) Reconcile(ctx context.Context, ownerID string) (*MergeReport, error) {
	return r.run(ctx, ownerID, false)
}

// Plan reports what Reconcile would do without writing anything
func (r *Reconciler) Plan(ctx context.Context, ownerID string) (*MergeReport, error) {
	return r.run(ctx, ownerID, true)
}

type group struct {
	ownerID    string
	identifier string
	members    []models.TrackedProperty
}

func (r *Reconciler) run(ctx context.Context, ownerID string, dryRun bool) (*MergeReport, error) {
	report := &MergeReport{DryRun: dryRun, ExecutedAt: r.now()}

	props, err := r.store.ListIdentifiedProperties(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list identified properties: %w", err)
	}

	groups := duplicateGroups(props)
	report.GroupsFound = len(groups)
	if len(groups) == 0 {
		r.log.WithField("owner_id", ownerID).Debug("No duplicate properties found")
		return report, nil
	}

	duplicates := 0
	for _, g := range groups {
		duplicates += len(g.members) - 1
	}
	if r.cfg.MaxDuplicates > 0 && duplicates > r.cfg.MaxDuplicates {
		return nil, fmt.Errorf("safety check failed: %d duplicates exceed limit of %d", duplicates, r.cfg.MaxDuplicates)
	}

	r.log.WithFields(logrus.Fields{"owner_id": ownerID, "dry_run": dryRun}).
		Infof("Reconciling %d duplicate groups (%d duplicates)", len(groups), duplicates)

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r.mergeGroup(ctx, g, dryRun, report)
	}

	r.log.Infof("Reconciliation finished: %d groups merged, %d duplicates deleted, %d snapshots re-pointed, %d conflicts, %d errors",
		report.GroupsMerged, report.DuplicatesDeleted, report.SnapshotsRepointed, len(report.Conflicts), len(report.Errors))
	return report, nil
}

func (r *Reconciler) mergeGroup(ctx context.Context, g group, dryRun bool, report *MergeReport) {
	log := r.log.WithFields(logrus.Fields{"owner_id": g.ownerID, "external_identifier": g.identifier})

	survivor, conflict := pickSurvivor(g)
	if conflict != nil {
		report.Conflicts = append(report.Conflicts, *conflict)
		log.Warn(conflict.Error())
		return
	}

	merged := 0
	for _, dup := range g.members {
		if dup.ID == survivor.ID {
			continue
		}
		m := Merge{
			OwnerID:            g.ownerID,
			ExternalIdentifier: g.identifier,
			DuplicateID:        dup.ID,
			SurvivorID:         survivor.ID,
		}

		if dryRun {
			count, err := r.store.CountSnapshots(ctx, dup.ID)
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("count snapshots of %s: %v", dup.ID, err))
				break
			}
			m.SnapshotsMoved = count
			log.Infof("[DRY-RUN] Would merge %s into %s (%d snapshots)", dup.ID, survivor.ID, count)
			report.Merges = append(report.Merges, m)
			report.SnapshotsRepointed += count
			report.DuplicatesDeleted++
			merged++
			continue
		}

		moved, err := r.mergeDuplicate(ctx, dup.ID, survivor.ID)
		m.SnapshotsMoved = moved
		report.SnapshotsRepointed += moved
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			log.WithError(err).Errorf("Merge of %s into %s stopped; retrying on next run", dup.ID, survivor.ID)
			break
		}

		if err := r.store.RecordMerge(ctx, &models.MergeLog{
			OwnerID:            g.ownerID,
			ExternalIdentifier: g.identifier,
			DuplicateID:        dup.ID,
			SurvivorID:         survivor.ID,
			SnapshotsMoved:     moved,
			Reason:             models.MergeReasonDuplicateIdentifier,
		}); err != nil {
			log.WithError(err).Warnf("Failed to write merge log for %s", dup.ID)
		}

		log.Infof("Merged %s into %s (%d snapshots)", dup.ID, survivor.ID, moved)
		report.Merges = append(report.Merges, m)
		report.DuplicatesDeleted++
		merged++
	}
	if merged > 0 {
		report.GroupsMerged++
	}
}

// mergeDuplicate re-points history first and soft-deletes only after a re-query
// finds nothing left, so an interrupted merge never orphans a snapshot.
func (r *Reconciler) mergeDuplicate(ctx context.Context, duplicateID, survivorID string) (int64, error) {
	moved, err := r.store.RepointSnapshots(ctx, duplicateID, survivorID)
	if err != nil {
		return moved, fmt.Errorf("re-point snapshots of %s to %s: %w", duplicateID, survivorID, err)
	}

	remaining, err := r.store.CountSnapshots(ctx, duplicateID)
	if err != nil {
		return moved, fmt.Errorf("re-count snapshots of %s: %w", duplicateID, err)
	}
	if remaining > 0 {
		return moved, fmt.Errorf("duplicate %s still owns %d snapshots; not deleted", duplicateID, remaining)
	}

	deleted, err := r.store.SoftDeleteIfUnreferenced(ctx, duplicateID)
	if err != nil {
		return moved, fmt.Errorf("soft-delete %s: %w", duplicateID, err)
	}
	if !deleted {
		return moved, fmt.Errorf("duplicate %s was not deleted: new snapshots arrived or row already gone", duplicateID)
	}
	return moved, nil
}

func duplicateGroups(props []models.TrackedProperty) []group {
	byKey := make(map[string]*group)
	var keys []string
	for _, p := range props {
		id := strings.TrimSpace(p.ExternalIdentifier)
		if id == "" {
			continue
		}
		key := p.OwnerID + "\x00" + id
		g, ok := byKey[key]
		if !ok {
			g = &group{ownerID: p.OwnerID, identifier: id}
			byKey[key] = g
			keys = append(keys, key)
		}
		g.members = append(g.members, p)
	}
	sort.Strings(keys)

	groups := make([]group, 0, len(keys))
	for _, k := range keys {
		if len(byKey[k].members) > 1 {
			groups = append(groups, *byKey[k])
		}
	}
	return groups
}

// pickSurvivor prefers the single primary target, else the most recently
// updated row (ties: oldest created, then lowest id).
func pickSurvivor(g group) (models.TrackedProperty, *ReconciliationConflict) {
	var primaries []models.TrackedProperty
	for _, p := range g.members {
		if p.IsPrimaryTarget {
			primaries = append(primaries, p)
		}
	}
	switch len(primaries) {
	case 1:
		return primaries[0], nil
	case 0:
	default:
		ids := make([]string, len(primaries))
		for i, p := range primaries {
			ids[i] = p.ID
		}
		return models.TrackedProperty{}, &ReconciliationConflict{
			OwnerID:            g.ownerID,
			ExternalIdentifier: g.identifier,
			PropertyIDs:        ids,
			Reason:             "multiple primary targets",
		}
	}

	candidates := append([]models.TrackedProperty(nil), g.members...)
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return candidates[0], nil
}
