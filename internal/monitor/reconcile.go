package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/streamwatch/internal/events"
	"github.com/randomizedcoder/streamwatch/internal/model"
	"github.com/randomizedcoder/streamwatch/internal/store"
)

// StreamSpec declares a stream that should be monitored.
// StaleThreshold applies at creation; zero keeps the model default.
type StreamSpec struct {
	ID             string
	Name           string
	URL            string
	StaleThreshold time.Duration
}

// StreamID returns the configured id, deriving a stable one from the URL when
// none is configured.
func (s StreamSpec) StreamID() string {
	if s.ID != "" {
		return s.ID
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(s.URL)).String()
}

// Catalog is the stream persistence the reconciler manages.
type Catalog interface {
	List(ctx context.Context) ([]*model.Stream, error)
	Create(ctx context.Context, s *model.Stream) error
	Delete(ctx context.Context, id string) error
}

// Reconciler keeps the stored stream set equal to a declared list. It stands
// in for a management API: it creates and deletes streams and emits the
// added and deleted events.
type Reconciler struct {
	catalog  Catalog
	tracker  *Tracker
	pub      events.Publisher
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewReconciler creates a reconciler. tracker may be shared with the
// checker so deleted streams lose their poll state immediately.
func NewReconciler(catalog Catalog, tracker *Tracker, pub events.Publisher, observer Observer, logger *slog.Logger) *Reconciler {
	if pub == nil {
		pub = events.Nop{}
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Reconciler{
		catalog:  catalog,
		tracker:  tracker,
		pub:      pub,
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}
}

// ReconcileResult counts the changes Apply made.
type ReconcileResult struct {
	Added   int
	Removed int
}

// Apply deletes stored streams that are not in specs, then creates streams
// in specs that do not exist. Existing streams keep their state. Deleting
// first lets a stream whose id changed while its URL stayed the same be
// recreated under the new id.
func (r *Reconciler) Apply(ctx context.Context, specs []StreamSpec) (ReconcileResult, error) {
	var res ReconcileResult

	current, err := r.catalog.List(ctx)
	if err != nil {
		return res, fmt.Errorf("list streams: %w", err)
	}
	existing := make(map[string]*model.Stream, len(current))
	for _, s := range current {
		existing[s.ID] = s
	}
	wanted := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		wanted[spec.StreamID()] = struct{}{}
	}

	var errs []error
	for _, s := range current {
		if _, ok := wanted[s.ID]; ok {
			continue
		}
		if err := r.Remove(ctx, s.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		res.Removed++
	}

	for _, spec := range specs {
		id := spec.StreamID()
		if _, ok := existing[id]; ok {
			continue
		}
		name := spec.Name
		if name == "" {
			name = spec.URL
		}
		now := r.now()
		s := model.NewStream(id, name, spec.URL, now)
		if spec.StaleThreshold > 0 {
			s.Health.StaleThreshold = spec.StaleThreshold
		}
		if err := r.catalog.Create(ctx, s); err != nil {
			errs = append(errs, fmt.Errorf("create stream %s: %w", id, err))
			continue
		}
		res.Added++
		r.logger.Info("stream_added", "stream_id", id, "url", spec.URL)
		r.pub.Publish(events.New(events.KindAdded, id, s.Clone(), now))
	}
	return res, errors.Join(errs...)
}

// Remove deletes one stream and tears down its poll state.
func (r *Reconciler) Remove(ctx context.Context, id string) error {
	err := r.catalog.Delete(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete stream %s: %w", id, err)
	}
	if r.tracker != nil {
		r.tracker.Forget(id)
	}
	r.observer.StreamRemoved(id)
	r.logger.Info("stream_deleted", "stream_id", id)
	r.pub.Publish(events.New(events.KindDeleted, id, nil, r.now()))
	return nil
}
