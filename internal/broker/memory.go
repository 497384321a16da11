package broker

import (
	"context"
	"sync"

	"github.com/sirosfoundation/go-wallet-exchange/internal/domain"
)

// MemoryBroker is an in-memory Broker for development and tests.
type MemoryBroker struct {
	mu       sync.RWMutex
	entities map[string]domain.UserEntity

	// Calls records the sequence of broker operations, newest last.
	// Tests use it to assert ordering of find-or-create round-trips.
	callsMu sync.Mutex
	calls   []string
}

// NewMemoryBroker creates an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		entities: make(map[string]domain.UserEntity),
	}
}

func (b *MemoryBroker) record(op string) {
	b.callsMu.Lock()
	b.calls = append(b.calls, op)
	b.callsMu.Unlock()
}

// Calls returns the recorded operation sequence.
func (b *MemoryBroker) Calls() []string {
	b.callsMu.Lock()
	defer b.callsMu.Unlock()
	out := make([]string, len(b.calls))
	copy(out, b.calls)
	return out
}

// PostEntity stores a new holder record.
func (b *MemoryBroker) PostEntity(ctx context.Context, entity domain.UserEntity) error {
	b.record("post")
	userID := userIDFromEntityID(entity.ID)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entities[userID]; ok {
		return ErrAlreadyExist
	}
	b.entities[userID] = entity
	return nil
}

// GetEntityByID returns the stored record, if any.
func (b *MemoryBroker) GetEntityByID(ctx context.Context, userID string) (domain.UserEntity, bool, error) {
	b.record("get")

	b.mu.RLock()
	defer b.mu.RUnlock()
	entity, ok := b.entities[userID]
	return entity, ok, nil
}

// UpdateEntity replaces the stored record.
func (b *MemoryBroker) UpdateEntity(ctx context.Context, userID string, entity domain.UserEntity) error {
	b.record("update")

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entities[userID]; !ok {
		return ErrNotFound
	}
	b.entities[userID] = entity
	return nil
}

// Close is a no-op.
func (b *MemoryBroker) Close(ctx context.Context) error {
	return nil
}
