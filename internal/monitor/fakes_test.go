package monitor

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/randomizedcoder/streamwatch/internal/events"
	"github.com/randomizedcoder/streamwatch/internal/manifest"
	"github.com/randomizedcoder/streamwatch/internal/model"
	"github.com/randomizedcoder/streamwatch/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memRepo is an in-memory Repository, StreamLister and Catalog.
type memRepo struct {
	mu        sync.Mutex
	streams   map[string]*model.Stream
	order     []string
	snapshots []model.MetricsSnapshot
}

func newMemRepo(streams ...*model.Stream) *memRepo {
	r := &memRepo{streams: make(map[string]*model.Stream)}
	for _, s := range streams {
		r.streams[s.ID] = s.Clone()
		r.order = append(r.order, s.ID)
	}
	return r
}

func (r *memRepo) Get(_ context.Context, id string) (*model.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.Clone(), nil
}

func (r *memRepo) Update(_ context.Context, id string, fn func(*model.Stream) error) (*model.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := s.Clone()
	if err := fn(c); err != nil {
		return nil, err
	}
	r.streams[id] = c
	return c.Clone(), nil
}

func (r *memRepo) AppendSnapshot(_ context.Context, snap model.MetricsSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snap)
	return nil
}

func (r *memRepo) ListIDs(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if _, ok := r.streams[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *memRepo) List(context.Context) ([]*model.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Stream, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) Create(_ context.Context, s *model.Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.streams[s.ID]; ok {
		return store.ErrDuplicate
	}
	for _, other := range r.streams {
		if other.URL == s.URL {
			return store.ErrDuplicate
		}
	}
	r.streams[s.ID] = s.Clone()
	r.order = append(r.order, s.ID)
	return nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.streams[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.streams, id)
	return nil
}

func (r *memRepo) snapshotCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.snapshots {
		if s.StreamID == id {
			n++
		}
	}
	return n
}

// scriptedFetcher returns queued results per URL.
type scriptedFetcher struct {
	mu      sync.Mutex
	results map[string][]fetchResult
	calls   []string
	hook    func(url string)
}

type fetchResult struct {
	res *manifest.Result
	err error
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{results: make(map[string][]fetchResult)}
}

func (f *scriptedFetcher) push(url string, res *manifest.Result, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[url] = append(f.results[url], fetchResult{res, err})
}

func (f *scriptedFetcher) Fetch(_ context.Context, url string) (*manifest.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	hook := f.hook
	queue := f.results[url]
	var next fetchResult
	if len(queue) > 0 {
		next = queue[0]
		if len(queue) > 1 {
			f.results[url] = queue[1:]
		}
	}
	f.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	if next.res == nil && next.err == nil {
		return nil, &manifest.FetchError{URL: url, Status: 404, Message: "Not Found", MediaType: model.MediaMaster}
	}
	return next.res, next.err
}

type recordingDeep struct {
	mu    sync.Mutex
	calls [][2]string
}

func (d *recordingDeep) Submit(streamID, segmentURL string) {
	d.mu.Lock()
	d.calls = append(d.calls, [2]string{streamID, segmentURL})
	d.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *recordingPublisher) kinds() []events.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Kind, len(p.events))
	for i, e := range p.events {
		out[i] = e.Kind
	}
	return out
}
