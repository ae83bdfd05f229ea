package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process RecordStore. It backs unit tests and
// offline development; semantics match the HTTP client, including
// empty-result-for-missing-collection and change notifications.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]Record
	handlers    map[string][]subscriberRef
	nextSub     int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Record),
		handlers:    make(map[string][]subscriberRef),
	}
}

func matchesFilter(rec Record, filter Filter) bool {
	for field, want := range filter {
		got := fmt.Sprint(rec[field])
		switch w := want.(type) {
		case Like:
			if !strings.Contains(got, string(w)) {
				return false
			}
		default:
			if got != fmt.Sprint(w) {
				return false
			}
		}
	}
	return true
}

func (m *MemoryStore) Query(ctx context.Context, collection string, filter Filter, sortExpr string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.collections[collection]
	if !ok {
		return []Record{}, nil
	}

	var out []Record
	for _, rec := range rows {
		if matchesFilter(rec, filter) {
			out = append(out, cloneRecord(rec))
		}
	}

	if sortExpr != "" {
		field := sortExpr
		desc := false
		if strings.HasPrefix(field, "-") {
			field = field[1:]
			desc = true
		}
		sort.Slice(out, func(i, j int) bool {
			a, b := fmt.Sprint(out[i][field]), fmt.Sprint(out[j][field])
			if desc {
				return a > b
			}
			return a < b
		})
	}
	if out == nil {
		out = []Record{}
	}
	return out, nil
}

func (m *MemoryStore) Create(ctx context.Context, collection string, fields Record) (Record, error) {
	m.mu.Lock()
	rows, ok := m.collections[collection]
	if !ok {
		rows = make(map[string]Record)
		m.collections[collection] = rows
	}
	rec := cloneRecord(fields)
	if rec.ID() == "" {
		rec["id"] = uuid.NewString()
	}
	rows[rec.ID()] = rec
	out := cloneRecord(rec)
	m.mu.Unlock()

	m.notify(ActionCreate, collection, rec)
	return out, nil
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, fields Record) (Record, error) {
	m.mu.Lock()
	rows, ok := m.collections[collection]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	rec, ok := rows[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	for k, v := range fields {
		if v == nil {
			delete(rec, k)
			continue
		}
		rec[k] = v
	}
	out := cloneRecord(rec)
	m.mu.Unlock()

	m.notify(ActionUpdate, collection, out)
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	rows, ok := m.collections[collection]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	rec, ok := rows[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(rows, id)
	m.mu.Unlock()

	m.notify(ActionDelete, collection, rec)
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, collection string, handler ChangeHandler) (func(), error) {
	m.mu.Lock()
	m.nextSub++
	id := m.nextSub
	m.handlers[collection] = append(m.handlers[collection], subscriberRef{id: id, handler: handler})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		refs := m.handlers[collection]
		for i, ref := range refs {
			if ref.id == id {
				m.handlers[collection] = append(refs[:i], refs[i+1:]...)
				break
			}
		}
	}, nil
}

func (m *MemoryStore) notify(action ChangeAction, collection string, rec Record) {
	event := ChangeEvent{
		Action:      action,
		Collection:  collection,
		RecordID:    rec.ID(),
		Date:        rec.String("date"),
		ParameterID: rec.String("parameter_id"),
		PlantUnit:   rec.String("plant_unit"),
	}
	m.mu.Lock()
	refs := make([]subscriberRef, len(m.handlers[collection]))
	copy(refs, m.handlers[collection])
	m.mu.Unlock()
	for _, ref := range refs {
		ref.handler(event)
	}
}

func cloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
