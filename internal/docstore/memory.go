package docstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Memory is an in-process Store with realtime listeners. It backs local development and tests.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]Document
	listeners   map[string]map[*listener]struct{}
	now         func() time.Time
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]Document),
		listeners:   make(map[string]map[*listener]struct{}),
		now:         time.Now,
	}
}

// WithNowFunc allows tests to override the store clock.
func (m *Memory) WithNowFunc(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Get reads a single document.
func (m *Memory) Get(ctx context.Context, ref DocRef) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[ref.Parent.path][ref.ID]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

// Set creates or replaces the document at ref.
func (m *Memory) Set(ctx context.Context, ref DocRef, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.putLocked(ref, fields)
	return nil
}

// Add stores fields under a new time-ordered identifier.
func (m *Memory) Add(ctx context.Context, collection CollectionRef, fields Fields) (DocRef, error) {
	if err := ctx.Err(); err != nil {
		return DocRef{}, err
	}

	ref := collection.Doc(ulid.Make().String())

	m.mu.Lock()
	defer m.mu.Unlock()

	m.putLocked(ref, fields)
	return ref, nil
}

// Delete removes the document at ref. Deleting a missing document is not an error.
func (m *Memory) Delete(ctx context.Context, ref DocRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.collections[ref.Parent.path]
	if _, ok := docs[ref.ID]; !ok {
		return nil
	}
	delete(docs, ref.ID)
	m.notifyLocked(ref.Parent.path)
	return nil
}

// Query runs q against the current contents of the store.
func (m *Memory) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.runLocked(q), nil
}

// Listen registers a realtime listener for q.
func (m *Memory) Listen(ctx context.Context, q Query) (<-chan Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := newListener(q)

	m.mu.Lock()
	set, ok := m.listeners[q.Collection.path]
	if !ok {
		set = make(map[*listener]struct{})
		m.listeners[q.Collection.path] = set
	}
	set[l] = struct{}{}
	l.offer(m.runLocked(q), m.now())
	m.mu.Unlock()

	go func() {
		l.run(ctx)

		m.mu.Lock()
		delete(m.listeners[q.Collection.path], l)
		m.mu.Unlock()
	}()

	return l.out, nil
}

func (m *Memory) putLocked(ref DocRef, fields Fields) {
	now := m.now().UTC()
	docs, ok := m.collections[ref.Parent.path]
	if !ok {
		docs = make(map[string]Document)
		m.collections[ref.Parent.path] = docs
	}
	docs[ref.ID] = Document{Ref: ref, Fields: Resolve(fields, now), UpdateTime: now}
	m.notifyLocked(ref.Parent.path)
}

func (m *Memory) notifyLocked(collection string) {
	now := m.now()
	for l := range m.listeners[collection] {
		l.offer(m.runLocked(l.query), now)
	}
}

func (m *Memory) runLocked(q Query) []Document {
	docs := make([]Document, 0, len(m.collections[q.Collection.path]))
	for _, doc := range m.collections[q.Collection.path] {
		if matches(doc, q.Filters) {
			docs = append(docs, cloneDocument(doc))
		}
	}
	sortDocuments(docs, q.Order)
	if q.Max > 0 && len(docs) > q.Max {
		docs = docs[:q.Max]
	}
	return docs
}

func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc.Fields[f.Field]
		if !ok || compareValues(v, f.Value) != 0 {
			return false
		}
	}
	return true
}

func sortDocuments(docs []Document, order Order) {
	slices.SortFunc(docs, func(a, b Document) int {
		c := 0
		if order.Field != "" {
			c = compareValues(a.Fields[order.Field], b.Fields[order.Field])
		}
		if c == 0 {
			c = compareValues(a.Ref.ID, b.Ref.ID)
		}
		if order.Direction == Desc {
			return -c
		}
		return c
	})
}

func cloneDocument(doc Document) Document {
	doc.Fields = maps.Clone(doc.Fields)
	return doc
}

// listener buffers snapshots in order so that writers never block on slow consumers.
type listener struct {
	query Query
	out   chan Snapshot

	mu      sync.Mutex
	pending []Snapshot
	last    []Document
	primed  bool
	signal  chan struct{}
}

func newListener(q Query) *listener {
	return &listener{
		query:  q,
		out:    make(chan Snapshot),
		signal: make(chan struct{}, 1),
	}
}

func (l *listener) offer(docs []Document, readTime time.Time) {
	l.mu.Lock()
	if l.primed && SameResult(l.last, docs) {
		l.mu.Unlock()
		return
	}
	l.primed = true
	l.last = docs
	l.pending = append(l.pending, Snapshot{Documents: docs, ReadTime: readTime})
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *listener) run(ctx context.Context) {
	defer close(l.out)

	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()

		for _, snap := range batch {
			select {
			case <-ctx.Done():
				return
			case l.out <- snap:
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-l.signal:
		}
	}
}

var _ Store = (*Memory)(nil)
