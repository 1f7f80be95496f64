package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"escrow-settlement-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Account Repo ---

type inMemoryAccountRepo struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*domain.Account
}

func newInMemoryAccountRepo() *inMemoryAccountRepo {
	return &inMemoryAccountRepo{accounts: make(map[uuid.UUID]*domain.Account)}
}

func (r *inMemoryAccountRepo) Create(ctx context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Username == a.Username {
			return fmt.Errorf("username already exists")
		}
	}
	cp := *a
	r.accounts[a.ID] = &cp
	return nil
}

func (r *inMemoryAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.accounts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (r *inMemoryAccountRepo) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

// --- In-Memory Registry Repo ---

type inMemoryRegistryRepo struct {
	mu         sync.RWMutex
	registries map[uuid.UUID]*domain.MerchantRegistry
}

func newInMemoryRegistryRepo() *inMemoryRegistryRepo {
	return &inMemoryRegistryRepo{registries: make(map[uuid.UUID]*domain.MerchantRegistry)}
}

func (r *inMemoryRegistryRepo) Create(ctx context.Context, reg *domain.MerchantRegistry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.registries[reg.Owner]; ok {
		return fmt.Errorf("registry already exists")
	}
	cp := *reg
	r.registries[reg.Owner] = &cp
	return nil
}

func (r *inMemoryRegistryRepo) GetByOwner(ctx context.Context, owner uuid.UUID) (*domain.MerchantRegistry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reg, ok := r.registries[owner]; ok {
		cp := *reg
		return &cp, nil
	}
	return nil, nil
}

func (r *inMemoryRegistryRepo) Update(ctx context.Context, reg *domain.MerchantRegistry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.registries[reg.Owner]; !ok {
		return fmt.Errorf("registry not found")
	}
	cp := *reg
	r.registries[reg.Owner] = &cp
	return nil
}

// --- In-Memory Session Repo ---

type inMemorySessionRepo struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*domain.PaymentSession
}

func newInMemorySessionRepo() *inMemorySessionRepo {
	return &inMemorySessionRepo{sessions: make(map[uuid.UUID]*domain.PaymentSession)}
}

func copySession(s *domain.PaymentSession) *domain.PaymentSession {
	cp := *s
	cp.Splits = make(map[string]domain.Split, len(s.Splits))
	for k, v := range s.Splits {
		cp.Splits[k] = v
	}
	return &cp
}

func (r *inMemorySessionRepo) Create(ctx context.Context, s *domain.PaymentSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = copySession(s)
	return nil
}

func (r *inMemorySessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[id]; ok {
		return copySession(s), nil
	}
	return nil, nil
}

func (r *inMemorySessionRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PaymentSession, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemorySessionRepo) Update(ctx context.Context, tx pgx.Tx, s *domain.PaymentSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return fmt.Errorf("session not found")
	}
	r.sessions[s.ID] = copySession(s)
	return nil
}

func (r *inMemorySessionRepo) Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("session not found")
	}
	delete(r.sessions, id)
	return nil
}

func (r *inMemorySessionRepo) ListByRecipient(ctx context.Context, recipient uuid.UUID, limit, offset int) ([]domain.PaymentSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.PaymentSession
	for _, s := range r.sessions {
		if s.Recipient == recipient {
			out = append(out, *copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- In-Memory Holding Repo ---

type holdingKey struct {
	address string
	asset   string
}

type inMemoryHoldingRepo struct {
	mu       sync.RWMutex
	holdings map[holdingKey]int64
}

func newInMemoryHoldingRepo() *inMemoryHoldingRepo {
	return &inMemoryHoldingRepo{holdings: make(map[holdingKey]int64)}
}

// Seed sets a balance directly, bypassing transfer rules. Test setup only.
func (r *inMemoryHoldingRepo) Seed(address, asset string, balance int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.holdings[holdingKey{address, asset}] = balance
}

func (r *inMemoryHoldingRepo) get(address, asset string) (*domain.Holding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if balance, ok := r.holdings[holdingKey{address, asset}]; ok {
		return &domain.Holding{Address: address, Asset: asset, Balance: balance}, nil
	}
	return nil, nil
}

func (r *inMemoryHoldingRepo) Get(ctx context.Context, address, asset string) (*domain.Holding, error) {
	return r.get(address, asset)
}

func (r *inMemoryHoldingRepo) GetTx(ctx context.Context, tx pgx.Tx, address, asset string) (*domain.Holding, error) {
	return r.get(address, asset)
}

func (r *inMemoryHoldingRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, address, asset string) (*domain.Holding, error) {
	return r.get(address, asset)
}

func (r *inMemoryHoldingRepo) Credit(ctx context.Context, tx pgx.Tx, address, asset string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.holdings[holdingKey{address, asset}] += amount
	return nil
}

func (r *inMemoryHoldingRepo) Debit(ctx context.Context, tx pgx.Tx, address, asset string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := holdingKey{address, asset}
	if r.holdings[key] < amount {
		return fmt.Errorf("insufficient balance for debit")
	}
	r.holdings[key] -= amount
	return nil
}

func (r *inMemoryHoldingRepo) Close(ctx context.Context, tx pgx.Tx, address, asset string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := holdingKey{address, asset}
	balance, ok := r.holdings[key]
	if !ok || balance != 0 {
		return fmt.Errorf("holding missing or not empty")
	}
	delete(r.holdings, key)
	return nil
}

func (r *inMemoryHoldingRepo) ListByAddress(ctx context.Context, address string) ([]domain.Holding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Holding
	for key, balance := range r.holdings {
		if key.address == address {
			out = append(out, domain.Holding{Address: key.address, Asset: key.asset, Balance: balance})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu      sync.RWMutex
	entries []domain.AuditLog
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *inMemoryAuditRepo) ListByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]domain.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.AuditLog
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.entries[i]
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- In-Memory Webhook Repo ---

type inMemoryWebhookRepo struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*domain.WebhookDeliveryLog
}

func newInMemoryWebhookRepo() *inMemoryWebhookRepo {
	return &inMemoryWebhookRepo{entries: make(map[uuid.UUID]*domain.WebhookDeliveryLog)}
}

func (r *inMemoryWebhookRepo) Create(ctx context.Context, log *domain.WebhookDeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *log
	r.entries[log.ID] = &cp
	return nil
}

func (r *inMemoryWebhookRepo) Update(ctx context.Context, log *domain.WebhookDeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *log
	r.entries[log.ID] = &cp
	return nil
}

// --- In-Memory Transactor ---

// inMemoryTransactor serializes transactions with a single mutex, standing
// in for the row locks the real ledger takes. Commit and Rollback both
// release; the release is idempotent so deferred Rollback after Commit is
// harmless.
type inMemoryTransactor struct {
	mu sync.Mutex
}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &serialTx{release: &t.mu}, nil
}

// serialTx is a pgx.Tx that holds the transactor's lock until finished.
type serialTx struct {
	release *sync.Mutex
	once    sync.Once
}

func (t *serialTx) finish() {
	t.once.Do(func() { t.release.Unlock() })
}

func (t *serialTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *serialTx) Commit(ctx context.Context) error          { t.finish(); return nil }
func (t *serialTx) Rollback(ctx context.Context) error        { t.finish(); return nil }
func (t *serialTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *serialTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *serialTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *serialTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *serialTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *serialTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *serialTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *serialTx) Conn() *pgx.Conn { return nil }
