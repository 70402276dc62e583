package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotel-rate-monitor/internal/database"
	"hotel-rate-monitor/internal/database/dbtest"
	"hotel-rate-monitor/internal/models"
)

func newStore(t *testing.T) *database.Store {
	return database.NewStore(dbtest.Open(t))
}

func TestListScanTargetsOrder(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := old.AddDate(0, 1, 0)

	for _, p := range []*models.TrackedProperty{
		{ID: "recent", OwnerID: "o1", DisplayName: "Recent", LastScannedAt: &recent},
		{ID: "never", OwnerID: "o1", DisplayName: "Never"},
		{ID: "old", OwnerID: "o1", DisplayName: "Old", LastScannedAt: &old},
		{ID: "other", OwnerID: "o2", DisplayName: "Other owner"},
	} {
		require.NoError(t, store.CreateProperty(ctx, p))
	}

	targets, err := store.ListScanTargets(ctx, "o1")
	require.NoError(t, err)
	ids := make([]string, len(targets))
	for i, p := range targets {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"never", "old", "recent"}, ids)

	all, err := store.ListScanTargets(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestPropertyIdentifierLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	p := &models.TrackedProperty{OwnerID: "o1", DisplayName: "Grand", Location: "Izmir"}
	require.NoError(t, store.CreateProperty(ctx, p))
	require.NotEmpty(t, p.ID)

	require.NoError(t, store.SetExternalIdentifier(ctx, p.ID, "H-9"))
	found, err := store.FindPropertyByIdentifier(ctx, "o1", "H-9")
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)

	_, err = store.FindPropertyByIdentifier(ctx, "o2", "H-9")
	assert.ErrorIs(t, err, database.ErrNotFound)

	byName, err := store.FindPropertyByName(ctx, "o1", "Grand", "Izmir")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byName.ID)

	err = store.SetExternalIdentifier(ctx, "missing", "H-1")
	assert.ErrorIs(t, err, database.ErrNotFound)

	at := time.Date(2024, 2, 2, 3, 0, 0, 0, time.UTC)
	require.NoError(t, store.MarkScanned(ctx, p.ID, at))
	got, err := store.GetProperty(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastScannedAt)
	assert.True(t, got.LastScannedAt.Equal(at))
}

func TestSessionWithOutcomes(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	session := &models.ScanSession{ID: "s1", Status: models.ScanStatusPending, Total: 2}
	require.NoError(t, store.CreateSession(ctx, session))

	now := time.Now().UTC()
	require.NoError(t, session.Transition(models.ScanStatusRunning, now))
	require.NoError(t, store.UpdateSession(ctx, session))

	require.NoError(t, store.AppendOutcome(ctx, &models.ScanOutcome{SessionID: "s1", PropertyID: "a", Success: true}))
	require.NoError(t, store.AppendOutcome(ctx, &models.ScanOutcome{SessionID: "s1", PropertyID: "b", Reason: "timed out"}))
	assert.Error(t, store.AppendOutcome(ctx, &models.ScanOutcome{SessionID: "s1", PropertyID: "a", Success: true}),
		"one outcome per property and session")

	session.Succeeded, session.Failed = 1, 1
	require.NoError(t, session.Transition(models.FinalStatus(1, 1), now.Add(time.Second)))
	require.NoError(t, store.UpdateSession(ctx, session))

	got, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusPartial, got.Status)
	assert.Equal(t, 1, got.Succeeded)
	require.NotNil(t, got.CompletedAt)
	require.Len(t, got.Outcomes, 2)

	sessions, err := store.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Empty(t, sessions[0].Outcomes)

	_, err = store.GetSession(ctx, "nope")
	assert.ErrorIs(t, err, database.ErrNotFound)
}
