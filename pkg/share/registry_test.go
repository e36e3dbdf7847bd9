package share_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scerrors "github.com/minuteworks/scribe/pkg/errors"
	"github.com/minuteworks/scribe/pkg/logging"
	"github.com/minuteworks/scribe/pkg/meeting"
	"github.com/minuteworks/scribe/pkg/pipeline/storage"
	"github.com/minuteworks/scribe/pkg/share"
)

func newTestRegistry(t *testing.T) (*share.Registry, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	return share.NewRegistry(store, logging.NewNopLogger()), store
}

// completedMeeting seeds a meeting in the completed state.
func completedMeeting(t *testing.T, store *storage.MemoryStore, id, summary string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, store.CreateMeeting(context.Background(), &meeting.Meeting{
		ID:        id,
		OwnerID:   "user-1",
		State:     meeting.StateCompleted,
		Summary:   summary,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func TestCreate_Idempotent(t *testing.T) {
	registry, store := newTestRegistry(t)
	completedMeeting(t, store, "mt-1", "the summary")
	ctx := context.Background()

	first, err := registry.Create(ctx, "mt-1")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "the summary", first.Summary)

	second, err := registry.Create(ctx, "mt-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "same summary must reuse the existing link")
}

func TestCreate_NotCompleted(t *testing.T) {
	registry, store := newTestRegistry(t)
	now := time.Now()
	require.NoError(t, store.CreateMeeting(context.Background(), &meeting.Meeting{
		ID:        "mt-1",
		OwnerID:   "user-1",
		State:     meeting.StateProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}))

	_, err := registry.Create(context.Background(), "mt-1")
	assert.True(t, scerrors.IsNotReady(err))
}

func TestCreate_UnknownMeeting(t *testing.T) {
	registry, _ := newTestRegistry(t)

	_, err := registry.Create(context.Background(), "mt-missing")
	assert.True(t, scerrors.IsNotFound(err))
}

func TestCreate_RegeneratedSummaryGetsFreshLink(t *testing.T) {
	registry, store := newTestRegistry(t)
	completedMeeting(t, store, "mt-1", "first summary")
	ctx := context.Background()

	first, err := registry.Create(ctx, "mt-1")
	require.NoError(t, err)

	// The summary is regenerated with different content.
	m, err := store.GetMeeting(ctx, "mt-1")
	require.NoError(t, err)
	m.Summary = "second summary"
	require.NoError(t, store.UpdateMeeting(ctx, m))

	second, err := registry.Create(ctx, "mt-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// The old link keeps serving its original snapshot.
	resolved, err := registry.Resolve(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first summary", resolved.Summary)

	resolved, err = registry.Resolve(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "second summary", resolved.Summary)
}

func TestResolve_UnknownID(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := registry.Resolve(ctx, "sh-0000000000000000")
	assert.True(t, scerrors.IsNotFound(err))

	// Malformed identifiers resolve to not found, not invalid input.
	_, err = registry.Resolve(ctx, "definitely not an id")
	assert.True(t, scerrors.IsNotFound(err))

	// Well-formed IDs of other entity types never reach the store.
	_, err = registry.Resolve(ctx, "mt-0a1B2c3D")
	assert.True(t, scerrors.IsNotFound(err))
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := share.Fingerprint("summary text")
	b := share.Fingerprint("summary text")
	c := share.Fingerprint("different text")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestCreate_CountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := storage.NewMemoryStore()
	registry := share.NewRegistry(store, logging.NewNopLogger(), share.WithMetrics(reg))
	completedMeeting(t, store, "mt-1", "the summary")
	ctx := context.Background()

	_, err := registry.Create(ctx, "mt-1")
	require.NoError(t, err)
	_, err = registry.Create(ctx, "mt-1")
	require.NoError(t, err)

	counts := map[string]float64{}
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "scribe_share_links_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" {
					counts[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, float64(1), counts["created"])
	assert.Equal(t, float64(1), counts["reused"])
}
