package envelope

import (
	"context"
	"fmt"
	"sync"
)

type InMemoryRepo struct {
	mu   sync.RWMutex
	data map[string]*EnvelopeRecord // by Name
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{data: make(map[string]*EnvelopeRecord)}
}

func (r *InMemoryRepo) PutRecord(_ context.Context, rec *EnvelopeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[rec.Name]; ok {
		return fmt.Errorf("%w: %q", ErrRecordExists, rec.Name)
	}
	r.data[rec.Name] = rec.clone()
	return nil
}

func (r *InMemoryRepo) GetRecord(_ context.Context, name string) (*EnvelopeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.data[name]; ok {
		return v.clone(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrRecordNotFound, name)
}
