package docstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps documents in process memory. It backs single-node
// development runs and tests, and honours the same atomicity and
// subscription contract as the Postgres store.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]Document
	subscribers map[string]map[*Subscription]struct{}
	closed      bool
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Document),
		subscribers: make(map[string]map[*Subscription]struct{}),
	}
}

// Get returns a copy of the document.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return Clone(doc), nil
}

// Set writes the whole document.
func (s *MemoryStore) Set(ctx context.Context, collection, id string, doc Document) error {
	return s.Batch(ctx, func(b Batch) error {
		b.Set(collection, id, doc)
		return nil
	})
}

// Create writes doc unless the document already exists.
func (s *MemoryStore) Create(ctx context.Context, collection, id string, doc Document) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if _, ok := s.collections[collection][id]; ok {
		return false, nil
	}
	s.applyLocked(batchOp{kind: opSet, collection: collection, id: id, doc: Clone(doc)})
	change := Change{Collection: collection, ID: id, Op: OpSet}
	for sub := range s.subscribers[collection] {
		sub.offer(change)
	}
	return true, nil
}

// Update merges fields into an existing document.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields Document) error {
	return s.Batch(ctx, func(b Batch) error {
		b.Update(collection, id, fields)
		return nil
	})
}

// Delete removes the document. Deleting an absent document is not an error.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	return s.Batch(ctx, func(b Batch) error {
		b.Delete(collection, id)
		return nil
	})
}

// Query returns matching documents ordered by id.
func (s *MemoryStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.queryLocked(collection, filters), nil
}

func (s *MemoryStore) queryLocked(collection string, filters []Filter) []Record {
	docs := s.collections[collection]
	records := make([]Record, 0, len(docs))
	for id, doc := range docs {
		if !matches(doc, filters) {
			continue
		}
		records = append(records, Record{ID: id, Data: Clone(doc)})
	}
	sortRecords(records)
	return records
}

// Batch applies every queued write or none of them.
func (s *MemoryStore) Batch(ctx context.Context, fn func(Batch) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := &opBatch{}
	if err := fn(b); err != nil {
		return err
	}
	if len(b.ops) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.validateLocked(b.ops); err != nil {
		return err
	}
	for _, op := range b.ops {
		s.applyLocked(op)
	}
	for _, change := range b.changes() {
		for sub := range s.subscribers[change.Collection] {
			sub.offer(change)
		}
	}
	return nil
}

// validateLocked checks that every update targets a document that exists at
// that point of the batch.
func (s *MemoryStore) validateLocked(ops []batchOp) error {
	type key struct{ collection, id string }
	present := make(map[key]bool)
	for _, op := range ops {
		k := key{op.collection, op.id}
		exists, seen := present[k]
		if !seen {
			_, exists = s.collections[op.collection][op.id]
		}
		switch op.kind {
		case opSet:
			present[k] = true
		case opDelete:
			present[k] = false
		case opUpdate:
			if !exists {
				return fmt.Errorf("docstore: update %s/%s: %w", op.collection, op.id, ErrNotFound)
			}
			present[k] = true
		}
	}
	return nil
}

func (s *MemoryStore) applyLocked(op batchOp) {
	docs, ok := s.collections[op.collection]
	if !ok {
		docs = make(map[string]Document)
		s.collections[op.collection] = docs
	}
	switch op.kind {
	case opSet:
		docs[op.id] = Clone(op.doc)
	case opUpdate:
		current := docs[op.id]
		for k, v := range op.doc {
			current[k] = cloneValue(v)
		}
	case opDelete:
		delete(docs, op.id)
	}
}

// Subscribe registers a live subscription. It is released by Close or when
// ctx is done.
func (s *MemoryStore) Subscribe(ctx context.Context, collection string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	var sub *Subscription
	done := make(chan struct{})
	sub = newSubscription(s.queryLocked(collection, nil), 0, func() {
		close(done)
		s.mu.Lock()
		delete(s.subscribers[collection], sub)
		s.mu.Unlock()
	})
	if s.subscribers[collection] == nil {
		s.subscribers[collection] = make(map[*Subscription]struct{})
	}
	s.subscribers[collection][sub] = struct{}{}
	go releaseOnDone(ctx, sub, done)
	return sub, nil
}

// SubscriberCount reports live subscriptions on collection.
func (s *MemoryStore) SubscriberCount(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers[collection])
}

// Close releases every subscription and rejects further use.
func (s *MemoryStore) Close() {
	s.mu.Lock()
	subs := make([]*Subscription, 0)
	for _, set := range s.subscribers {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	s.closed = true
	s.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Close()
	}
}
