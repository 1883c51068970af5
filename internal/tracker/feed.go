package tracker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"campus_shuttle/internal/backend"
	"campus_shuttle/internal/models"
)

const (
	ShuttlesTable = "shuttles"
	RidesTable    = "rides"
	ProfilesTable = "profiles"
)

// DefaultTimeout bounds every backend call a tracker makes.
const DefaultTimeout = 10 * time.Second

type FeedOptions struct {
	Timeout time.Duration
	// DemoShuttles substitutes DemoShuttles() for an empty result. It exists
	// for environments without seeded data and should stay off in production.
	DemoShuttles bool
	Log          *logrus.Entry
}

// ShuttleFeed keeps the list of active shuttles live.
type ShuttleFeed struct {
	store backend.Store
	demo  bool
	live  *liveQuery[[]models.Shuttle]
}

func NewShuttleFeed(store backend.Store, opts FeedOptions) *ShuttleFeed {
	log := opts.Log
	if log == nil {
		log = logrus.WithField("component", "shuttle_feed")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	f := &ShuttleFeed{store: store, demo: opts.DemoShuttles}
	f.live = &liveQuery[[]models.Shuttle]{
		log:     log,
		timeout: timeout,
		fetch:   f.fetch,
		degrade: func(error) []models.Shuttle { return []models.Shuttle{} },
	}
	return f
}

// Start delivers the active shuttles to onUpdate before returning, then
// re-delivers the full list after every change to the shuttle table. The
// returned func closes the subscription and must be called.
func (f *ShuttleFeed) Start(ctx context.Context, onUpdate func([]models.Shuttle)) (func(), error) {
	deliver := onUpdate
	if f.demo {
		deliver = func(list []models.Shuttle) {
			if len(list) == 0 {
				list = DemoShuttles()
			}
			onUpdate(list)
		}
	}
	return f.live.start(ctx, deliver, func(ctx context.Context, listener func(backend.Change)) (func(), error) {
		return f.store.SubscribeChanges(ctx, ShuttlesTable, nil, listener)
	})
}

// Refresh re-fetches on demand (pull to refresh). It is a no-op before
// Start or after cancellation.
func (f *ShuttleFeed) Refresh(ctx context.Context) {
	f.live.refresh(ctx)
}

// ActiveShuttles is the one-shot query behind the feed; rows come back in
// backend order.
func ActiveShuttles(ctx context.Context, store backend.Querier) ([]models.Shuttle, error) {
	shuttles := []models.Shuttle{}
	q := backend.Query{
		Table:   ShuttlesTable,
		Filters: []backend.Filter{backend.Eq("is_active", true)},
	}
	if err := store.Query(ctx, q, &shuttles); err != nil {
		return nil, err
	}
	return shuttles, nil
}

func (f *ShuttleFeed) fetch(ctx context.Context) ([]models.Shuttle, error) {
	return ActiveShuttles(ctx, f.store)
}
