package identity

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a dev/test Store. One mutex serializes every mutation, which
// gives InsertPending and CommitActivation the same all-or-nothing behavior as
// the Postgres transactions.
type InMemoryStore struct {
	mu sync.Mutex

	byID      map[PrincipalID]*Principal
	byHandle  map[string]PrincipalID // handle_norm -> id
	byContact map[string]PrincipalID // contact_norm -> id
	pending   map[PrincipalID]struct{}
}

// NewInMemoryStore constructs an empty in-memory Store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:      make(map[PrincipalID]*Principal),
		byHandle:  make(map[string]PrincipalID),
		byContact: make(map[string]PrincipalID),
		pending:   make(map[PrincipalID]struct{}),
	}
}

func (s *InMemoryStore) InsertPending(ctx context.Context, p Principal) error {
	const op = "identity.InMemoryStore.InsertPending"

	if err := ctx.Err(); err != nil {
		return unavailable(op, err)
	}
	if p.ID.IsZero() || p.HandleNorm == "" || p.ContactNorm == "" {
		return invalid(op, "missing id, handle or contact")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[p.ID]; ok {
		return ConflictError{Op: op, Field: conflictFieldID}
	}
	if _, ok := s.byHandle[p.HandleNorm]; ok {
		return ConflictError{Op: op, Field: "handle"}
	}
	if _, ok := s.byContact[p.ContactNorm]; ok {
		return ConflictError{Op: op, Field: "contact"}
	}

	row := p
	row.Activated = false
	row.ActivatedAt = nil
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	s.byID[row.ID] = &row
	s.byHandle[row.HandleNorm] = row.ID
	s.byContact[row.ContactNorm] = row.ID
	s.pending[row.ID] = struct{}{}
	return nil
}

func (s *InMemoryStore) ActivationExists(ctx context.Context, id PrincipalID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, unavailable("identity.InMemoryStore.ActivationExists", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.pending[id]
	return ok, nil
}

func (s *InMemoryStore) CommitActivation(ctx context.Context, id PrincipalID, now time.Time) error {
	const op = "identity.InMemoryStore.CommitActivation"

	if err := ctx.Err(); err != nil {
		return unavailable(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[id]; !ok {
		return OpError{Op: op, Kind: ErrNoSuchPendingActivation}
	}
	row := s.byID[id]
	if row == nil {
		// Unreachable: a pending record always has its principal.
		return OpError{Op: op, Kind: ErrStoreUnavailable}
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}
	delete(s.pending, id)
	row.Activated = true
	row.ActivatedAt = &now
	return nil
}

func (s *InMemoryStore) Credentials(ctx context.Context, handleNorm string) (Credentials, error) {
	const op = "identity.InMemoryStore.Credentials"

	if err := ctx.Err(); err != nil {
		return Credentials{}, unavailable(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHandle[handleNorm]
	if !ok {
		return Credentials{}, OpError{Op: op, Kind: ErrNotFound}
	}
	row := s.byID[id]
	return Credentials{
		PrincipalID:  row.ID,
		PasswordHash: row.PasswordHash,
		Activated:    row.Activated,
	}, nil
}

func (s *InMemoryStore) PendingByContact(ctx context.Context, contactNorm string) (PrincipalID, error) {
	const op = "identity.InMemoryStore.PendingByContact"

	if err := ctx.Err(); err != nil {
		return PrincipalID{}, unavailable(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byContact[contactNorm]
	if !ok {
		return PrincipalID{}, OpError{Op: op, Kind: ErrNotFound}
	}
	if _, pending := s.pending[id]; !pending {
		return PrincipalID{}, OpError{Op: op, Kind: ErrNotFound}
	}
	return id, nil
}

func (s *InMemoryStore) PrincipalByID(ctx context.Context, id PrincipalID) (Principal, error) {
	const op = "identity.InMemoryStore.PrincipalByID"

	if err := ctx.Err(); err != nil {
		return Principal{}, unavailable(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byID[id]
	if !ok {
		return Principal{}, OpError{Op: op, Kind: ErrNotFound}
	}
	out := *row
	if row.ActivatedAt != nil {
		t := *row.ActivatedAt
		out.ActivatedAt = &t
	}
	return out, nil
}

// Counts returns the number of principals and activation records. Tests use it
// to assert that failed mutations left no partial state.
func (s *InMemoryStore) Counts() (principals, activations int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID), len(s.pending)
}
