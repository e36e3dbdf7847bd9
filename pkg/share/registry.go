// Package share implements share link issuance and public resolution.
// Links are idempotent per (meeting, summary fingerprint) and resolve
// to an immutable snapshot of the summary text at creation time.
package share

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/minuteworks/scribe/pkg/contentid"
	scerrors "github.com/minuteworks/scribe/pkg/errors"
	"github.com/minuteworks/scribe/pkg/logging"
	"github.com/minuteworks/scribe/pkg/meeting"
)

// Registry issues and resolves share links over the pipeline store.
type Registry struct {
	store  meeting.Store
	logger logging.Logger
	links  *prometheus.CounterVec
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics registers share link counters on the given registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *Registry) {
		r.links = promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "scribe_share_links_total",
				Help: "Share link create operations by outcome",
			},
			[]string{"outcome"},
		)
	}
}

// NewRegistry creates a share link registry.
func NewRegistry(store meeting.Store, logger logging.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		logger: logger.With(logging.F("component", "share_registry")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) countLink(outcome string) {
	if r.links != nil {
		r.links.WithLabelValues(outcome).Inc()
	}
}

// Fingerprint computes the deterministic content hash used for
// idempotent link creation.
func Fingerprint(summary string) string {
	sum := sha256.Sum256([]byte(summary))
	return hex.EncodeToString(sum[:])
}

// Create issues a share link for the meeting's current summary. It
// requires the meeting's summarization to be completed, otherwise it
// fails as not ready. When a link already exists for the same summary
// content, its identifier is returned unchanged, so repeated create
// clicks never proliferate links. A regenerated summary gets a fresh
// link while old links keep serving their original snapshots.
func (r *Registry) Create(ctx context.Context, meetingID string) (*meeting.ShareLink, error) {
	m, err := r.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if m.State != meeting.StateCompleted || m.Summary == "" {
		return nil, fmt.Errorf("summary for meeting %s is not ready: %w", meetingID, scerrors.ErrNotReady)
	}

	fp := Fingerprint(m.Summary)
	if existing, err := r.store.ShareLinkByFingerprint(ctx, m.ID, fp); err == nil {
		r.countLink("reused")
		return existing, nil
	} else if !scerrors.IsNotFound(err) {
		return nil, err
	}

	link := &meeting.ShareLink{
		ID:          contentid.NewOpaque(contentid.TypeShare),
		MeetingID:   m.ID,
		Fingerprint: fp,
		Summary:     m.Summary,
		CreatedAt:   time.Now(),
	}
	if err := r.store.InsertShareLink(ctx, link); err != nil {
		if scerrors.IsDuplicate(err) {
			// A concurrent create won. Return its link.
			return r.store.ShareLinkByFingerprint(ctx, m.ID, fp)
		}
		return nil, err
	}

	r.countLink("created")
	r.logger.Info("Share link created",
		logging.F("meeting_id", m.ID),
		logging.F("share_id", link.ID))
	return link, nil
}

// Resolve returns the snapshot behind a share identifier. It is the one
// operation served without any owner identity; unknown identifiers
// resolve to not found with no further detail.
func (r *Registry) Resolve(ctx context.Context, shareID string) (*meeting.ShareLink, error) {
	cid, err := contentid.Parse(shareID)
	if err != nil || cid.Type != contentid.TypeShare {
		return nil, fmt.Errorf("share link %q: %w", shareID, scerrors.ErrNotFound)
	}
	return r.store.GetShareLink(ctx, shareID)
}
