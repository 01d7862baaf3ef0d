package store

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]Snapshot)}
}

func (s *MemoryStore) Init(_ context.Context) error {
	return nil
}

func (s *MemoryStore) Save(_ context.Context, snapshot *Snapshot) error {
	prepare(snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *snapshot
	copied.Payload = append([]byte{}, snapshot.Payload...)
	s.snapshots[snapshot.ID] = copied
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "id %s", id)
	}
	return &snapshot, nil
}

func (s *MemoryStore) LoadByName(ctx context.Context, name string) (*Snapshot, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	for k := len(all) - 1; k >= 0; k-- {
		if all[k].Name == name {
			return s.Load(ctx, all[k].ID)
		}
	}

	return nil, errors.Wrapf(ErrNotFound, "name %q", name)
}

// List returns the snapshots in creation order, without payloads.
func (s *MemoryStore) List(_ context.Context) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]Snapshot, 0, len(s.snapshots))
	for _, snapshot := range s.snapshots {
		snapshot.Payload = nil
		list = append(list, snapshot)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snapshots[id]; !ok {
		return errors.Wrapf(ErrNotFound, "id %s", id)
	}

	delete(s.snapshots, id)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
