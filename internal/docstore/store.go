// Package docstore abstracts the whole-document store the core runs against:
// records keyed by id inside named collections, atomic multi-document batches
// and per-collection live subscriptions.
package docstore

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound indicates that the requested document does not exist.
var ErrNotFound = errors.New("docstore: not found")

// ErrClosed occurs when a store is used after Close.
var ErrClosed = errors.New("docstore: closed")

// Document is a JSON-like record body.
type Document map[string]any

// Record couples a document with its id.
type Record struct {
	ID   string
	Data Document
}

// Filter matches documents whose top-level field equals Value.
type Filter struct {
	Field string
	Value any
}

// Op enumerates change kinds delivered to subscribers.
type Op string

const (
	// OpSet marks a create, overwrite or field update.
	OpSet Op = "set"
	// OpDelete marks a removal.
	OpDelete Op = "delete"
)

// Change notifies subscribers that a document changed.
type Change struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Op         Op     `json:"op"`
}

// Batch collects writes that commit atomically.
type Batch interface {
	Set(collection, id string, doc Document)
	Update(collection, id string, fields Document)
	Delete(collection, id string)
}

// Store is the document store contract.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, doc Document) error
	// Create writes doc only when no document with id exists. It reports
	// whether the write happened.
	Create(ctx context.Context, collection, id string, doc Document) (bool, error)
	// Update merges top-level fields into an existing document in a single
	// write. It returns ErrNotFound when the document is absent.
	Update(ctx context.Context, collection, id string, fields Document) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, filters ...Filter) ([]Record, error)
	// Batch runs fn and commits every write it queued atomically. If fn or
	// the commit fails nothing is applied.
	Batch(ctx context.Context, fn func(Batch) error) error
	// Subscribe returns the current contents of collection and a stream of
	// subsequent changes. Callers must Close the subscription.
	Subscribe(ctx context.Context, collection string) (*Subscription, error)
}

// Subscription delivers change notifications for one collection. The
// notification channel is buffered; when it is full new notifications are
// coalesced into the ones already pending.
type Subscription struct {
	Snapshot []Record

	changes chan Change
	once    sync.Once
	stop    func()
}

func newSubscription(snapshot []Record, buffer int, stop func()) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	return &Subscription{Snapshot: snapshot, changes: make(chan Change, buffer), stop: stop}
}

// Changes returns the notification channel. It is closed after Close.
func (s *Subscription) Changes() <-chan Change {
	return s.changes
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	if s == nil {
		return nil
	}
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		close(s.changes)
	})
	return nil
}

func (s *Subscription) offer(change Change) {
	select {
	case s.changes <- change:
	default:
	}
}

type opKind int

const (
	opSet opKind = iota
	opUpdate
	opDelete
)

type batchOp struct {
	kind       opKind
	collection string
	id         string
	doc        Document
}

type opBatch struct {
	ops []batchOp
}

func (b *opBatch) Set(collection, id string, doc Document) {
	b.ops = append(b.ops, batchOp{kind: opSet, collection: collection, id: id, doc: Clone(doc)})
}

func (b *opBatch) Update(collection, id string, fields Document) {
	b.ops = append(b.ops, batchOp{kind: opUpdate, collection: collection, id: id, doc: Clone(fields)})
}

func (b *opBatch) Delete(collection, id string) {
	b.ops = append(b.ops, batchOp{kind: opDelete, collection: collection, id: id})
}

func (b *opBatch) changes() []Change {
	out := make([]Change, 0, len(b.ops))
	for _, op := range b.ops {
		change := Change{Collection: op.collection, ID: op.id, Op: OpSet}
		if op.kind == opDelete {
			change.Op = OpDelete
		}
		out = append(out, change)
	}
	return out
}

func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc[f.Field]
		if !ok || !equalValues(v, f.Value) {
			return false
		}
	}
	return true
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
}

// releaseOnDone closes sub when ctx ends. It returns once sub is closed.
func releaseOnDone(ctx context.Context, sub *Subscription, done <-chan struct{}) {
	select {
	case <-ctx.Done():
		_ = sub.Close()
	case <-done:
	}
}
