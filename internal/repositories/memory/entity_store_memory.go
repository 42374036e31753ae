package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SAP-F-2025/property-import-service/internal/models"
	"github.com/SAP-F-2025/property-import-service/internal/repositories"
)

// EntityStoreMemory is a tenant store that serializes transactions and buffers their writes
// until commit.
type EntityStoreMemory struct {
	txMu    sync.Mutex // held for the whole transaction
	mu      sync.RWMutex
	records map[string]models.Record
	nextID  uint

	// BeforeCreate, when set, runs before every insert; a returned error fails the insert.
	BeforeCreate func(record models.Record) error
}

func NewEntityStoreMemory() *EntityStoreMemory {
	return &EntityStoreMemory{records: make(map[string]models.Record)}
}

func recordKey(entity models.EntityType, organizationID, naturalKey string) string {
	return string(entity) + "\x00" + organizationID + "\x00" + naturalKey
}

func keyOf(record models.Record) string {
	p := record.GetProvenance()
	return recordKey(record.Entity(), p.OrganizationID, p.NaturalKey)
}

// Seed stores records outside any transaction, as if an earlier import had created them.
func (s *EntityStoreMemory) Seed(records ...models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.nextID++
		r.AssignID(s.nextID)
		s.records[keyOf(r)] = r
	}
}

// Records returns the committed records of one entity type ordered by ID.
func (s *EntityStoreMemory) Records(entity models.EntityType) []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Record
	for _, r := range s.records {
		if r.Entity() == entity {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID() < out[j].RecordID() })
	return out
}

func (s *EntityStoreMemory) WithinTransaction(ctx context.Context, fn func(tx repositories.EntityTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memoryTx{store: s, pending: make(map[string]models.Record)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	for k, r := range tx.pending {
		s.records[k] = r
	}
	s.mu.Unlock()
	return nil
}

type memoryTx struct {
	store   *EntityStoreMemory
	pending map[string]models.Record
}

func (t *memoryTx) lookup(key string) (models.Record, bool) {
	if r, ok := t.pending[key]; ok {
		return r, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	r, ok := t.store.records[key]
	return r, ok
}

func (t *memoryTx) FindIDByNaturalKey(ctx context.Context, entity models.EntityType, organizationID, naturalKey string) (uint, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	r, ok := t.lookup(recordKey(entity, organizationID, naturalKey))
	if !ok {
		return 0, false, nil
	}
	return r.RecordID(), true, nil
}

func (t *memoryTx) Create(ctx context.Context, record models.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if hook := t.store.BeforeCreate; hook != nil {
		if err := hook(record); err != nil {
			return err
		}
	}
	key := keyOf(record)
	if _, exists := t.lookup(key); exists {
		return repositories.ErrDuplicateKey
	}

	t.store.mu.Lock()
	t.store.nextID++
	id := t.store.nextID
	t.store.mu.Unlock()

	now := time.Now()
	p := record.GetProvenance()
	p.CreatedAt, p.UpdatedAt = now, now
	record.AssignID(id)
	t.pending[key] = record
	return nil
}
