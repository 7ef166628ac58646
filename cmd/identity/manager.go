package identity

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"pastr/cmd/internal/workpool"
	"pastr/cmd/security/password"
	"pastr/cmd/security/secret"
)

// Observer receives operation outcomes and hash timings.
// *metrics.Metrics satisfies it.
type Observer interface {
	ObserveAccountOp(op, outcome string)
	ObserveHash(op string, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveAccountOp(string, string)   {}
func (nopObserver) ObserveHash(string, time.Duration) {}

// Manager orchestrates register, activate and login over a Store.
// It is safe for concurrent use.
type Manager struct {
	store  Store
	hasher *password.Hasher
	pepper secret.Pepper

	pool *workpool.Pool
	log  *slog.Logger
	obs  Observer
	now  func() time.Time

	// dummyHash is verified when the handle is unknown so that both login
	// failures cost one Argon2id evaluation.
	dummyHash string
}

// Option configures a Manager.
type Option func(*Manager)

// WithPool runs hash/verify on p instead of the calling goroutine.
func WithPool(p *workpool.Pool) Option {
	return func(m *Manager) { m.pool = p }
}

// WithLogger sets the structured logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithObserver records operation outcomes and hash timings.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.obs = o
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager wires a Manager. The pepper is copied; the caller may discard its slice.
// A nil store or hasher, or an empty pepper, fails with ErrHasherInit.
func NewManager(store Store, hasher *password.Hasher, pepper secret.Pepper, opts ...Option) (*Manager, error) {
	const op = "identity.NewManager"

	if store == nil {
		return nil, OpError{Op: op, Kind: ErrInvalidInput, Err: errors.New("nil store")}
	}
	if hasher == nil {
		return nil, OpError{Op: op, Kind: ErrHasherInit, Err: errors.New("nil hasher")}
	}
	if pepper.Empty() {
		return nil, OpError{Op: op, Kind: ErrHasherInit, Err: secret.ErrPepperMissing}
	}

	m := &Manager{
		store:  store,
		hasher: hasher,
		pepper: secret.Pepper(bytes.Clone(pepper)),
		log:    slog.Default(),
		obs:    nopObserver{},
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	dummy, err := hasher.Hash([]byte("pastr-timing-equalizer"), m.pepper)
	if err != nil {
		return nil, OpError{Op: op, Kind: ErrHasherInit, Err: err}
	}
	m.dummyHash = dummy

	return m, nil
}

// Register hashes the password, then atomically creates a pending principal and
// its activation record. in.Password is wiped before Register returns.
//
// Errors: ErrInvalidInput, ErrDuplicatePrincipal (ConflictError), ErrStoreUnavailable,
// ErrCanceled, ErrHasherInit.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (PrincipalID, error) {
	const op = "identity.Register"

	pw := bytes.Clone(in.Password)
	clear(in.Password)

	id, err := m.register(ctx, op, in.Handle, in.Contact, pw)
	m.record(ctx, "register", err)
	if err != nil {
		return PrincipalID{}, err
	}
	m.log.InfoContext(ctx, "account.register.ok", "principal_id", id.String())
	return id, nil
}

func (m *Manager) register(ctx context.Context, op, handle, contact string, pw []byte) (PrincipalID, error) {
	handle = strings.TrimSpace(handle)
	contact = strings.TrimSpace(contact)
	if handle == "" || contact == "" || len(pw) == 0 {
		clear(pw)
		return PrincipalID{}, invalid(op, "handle, contact and password are required")
	}

	// The job owns pw from here on and wipes it once hashed.
	var (
		enc     string
		hashErr error
	)
	err := m.run(ctx, "hash", func() {
		enc, hashErr = m.hasher.Hash(pw, m.pepper)
		clear(pw)
	})
	if err != nil {
		if errors.Is(err, workpool.ErrNotStarted) {
			clear(pw)
		}
		return PrincipalID{}, OpError{Op: op, Kind: ErrCanceled, Err: err}
	}
	if hashErr != nil {
		return PrincipalID{}, OpError{Op: op, Kind: ErrHasherInit, Err: hashErr}
	}

	p := Principal{
		Handle:       handle,
		HandleNorm:   NormalizeHandle(handle),
		Contact:      contact,
		ContactNorm:  NormalizeContact(contact),
		PasswordHash: enc,
		CreatedAt:    m.now(),
	}

	// An id collision is a store fault, not a duplicate principal: draw a
	// fresh id once, then give up as unavailable.
	for attempt := 0; ; attempt++ {
		id, err := NewPrincipalID()
		if err != nil {
			return PrincipalID{}, OpError{Op: op, Kind: ErrHasherInit, Err: err}
		}
		p.ID = id

		err = m.store.InsertPending(ctx, p)
		if err == nil {
			return id, nil
		}
		field, ok := ConflictField(err)
		switch {
		case !ok:
			return PrincipalID{}, m.storeErr(op, err)
		case field != conflictFieldID:
			return PrincipalID{}, ConflictError{Op: op, Field: field}
		case attempt > 0:
			return PrincipalID{}, OpError{Op: op, Kind: ErrStoreUnavailable, Err: errIDCollision}
		}
		m.log.WarnContext(ctx, "account.register.id_collision", "principal_id", id.String())
	}
}

// Activate confirms a pending principal exactly once.
//
// Errors: ErrNoSuchPendingActivation (already activated, never registered, or
// lost a concurrent race), ErrStoreUnavailable, ErrCanceled.
func (m *Manager) Activate(ctx context.Context, id PrincipalID) error {
	const op = "identity.Activate"

	err := m.activate(ctx, op, id)
	m.record(ctx, "activate", err)
	if err != nil {
		return err
	}
	m.log.InfoContext(ctx, "account.activate.ok", "principal_id", id.String())
	return nil
}

func (m *Manager) activate(ctx context.Context, op string, id PrincipalID) error {
	if id.IsZero() {
		return OpError{Op: op, Kind: ErrNoSuchPendingActivation}
	}

	ok, err := m.store.ActivationExists(ctx, id)
	if err != nil {
		return m.storeErr(op, err)
	}
	if !ok {
		return OpError{Op: op, Kind: ErrNoSuchPendingActivation}
	}

	if err := m.store.CommitActivation(ctx, id, m.now()); err != nil {
		if IsNoSuchPendingActivation(err) {
			return OpError{Op: op, Kind: ErrNoSuchPendingActivation}
		}
		return m.storeErr(op, err)
	}
	return nil
}

// Login verifies handle + password. It does not look at the activation flag;
// the result exposes it for the caller's policy. password is wiped before Login returns.
//
// Errors: ErrInvalidCredentials (unknown handle or wrong password, identical in
// both cases), ErrMalformedHash, ErrStoreUnavailable, ErrCanceled.
func (m *Manager) Login(ctx context.Context, handle string, password []byte) (LoginResult, error) {
	const op = "identity.Login"

	pw := bytes.Clone(password)
	clear(password)

	res, err := m.login(ctx, op, handle, pw)
	m.record(ctx, "login", err)
	return res, err
}

func (m *Manager) login(ctx context.Context, op, handle string, pw []byte) (LoginResult, error) {
	known := true
	creds, err := m.store.Credentials(ctx, NormalizeHandle(handle))
	switch {
	case err == nil:
	case IsNotFound(err):
		known = false
		creds = Credentials{PasswordHash: m.dummyHash}
	default:
		clear(pw)
		return LoginResult{}, m.storeErr(op, err)
	}

	var verifyErr error
	err = m.run(ctx, "verify", func() {
		verifyErr = m.hasher.Verify(pw, creds.PasswordHash, m.pepper)
		clear(pw)
	})
	if err != nil {
		if errors.Is(err, workpool.ErrNotStarted) {
			clear(pw)
		}
		return LoginResult{}, OpError{Op: op, Kind: ErrCanceled, Err: err}
	}

	switch {
	case !known:
		return LoginResult{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	case verifyErr == nil:
		return LoginResult{PrincipalID: creds.PrincipalID, Activated: creds.Activated}, nil
	case errors.Is(verifyErr, password.ErrInvalidCredentials):
		return LoginResult{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	case errors.Is(verifyErr, password.ErrMalformedHash):
		m.log.ErrorContext(ctx, "account.login.malformed_hash",
			"alert", true,
			"principal_id", creds.PrincipalID.String(),
		)
		return LoginResult{}, OpError{Op: op, Kind: ErrMalformedHash, Err: verifyErr}
	default:
		return LoginResult{}, OpError{Op: op, Kind: ErrHasherInit, Err: verifyErr}
	}
}

// PendingActivation returns the id of a still-pending principal by contact
// address, for re-delivery of the activation link.
//
// Errors: ErrNoSuchPendingActivation, ErrStoreUnavailable, ErrCanceled.
func (m *Manager) PendingActivation(ctx context.Context, contact string) (PrincipalID, error) {
	const op = "identity.PendingActivation"

	id, err := m.store.PendingByContact(ctx, NormalizeContact(contact))
	switch {
	case err == nil:
	case IsNotFound(err):
		err = OpError{Op: op, Kind: ErrNoSuchPendingActivation}
	default:
		err = m.storeErr(op, err)
	}
	m.record(ctx, "pending_lookup", err)
	if err != nil {
		return PrincipalID{}, err
	}
	return id, nil
}

// Principal returns the principal with PasswordHash blanked.
//
// Errors: ErrNotFound, ErrStoreUnavailable, ErrCanceled.
func (m *Manager) Principal(ctx context.Context, id PrincipalID) (Principal, error) {
	const op = "identity.Principal"

	p, err := m.store.PrincipalByID(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return Principal{}, OpError{Op: op, Kind: ErrNotFound}
		}
		return Principal{}, m.storeErr(op, err)
	}
	p.PasswordHash = ""
	return p, nil
}

// run schedules a CPU-bound hasher call on the pool and times it.
func (m *Manager) run(ctx context.Context, op string, fn func()) error {
	return m.pool.Do(ctx, func() {
		start := time.Now()
		fn()
		m.obs.ObserveHash(op, time.Since(start))
	})
}

// storeErr keeps classified store errors and treats anything else as unavailable.
func (m *Manager) storeErr(op string, err error) error {
	if Classify(err) != nil {
		return err
	}
	return unavailable(op, err)
}

func (m *Manager) record(ctx context.Context, op string, err error) {
	outcome := outcomeOf(err)
	m.obs.ObserveAccountOp(op, outcome)

	switch outcome {
	case "ok", "duplicate", "no_pending", "invalid_credentials", "invalid_input":
	case "malformed_hash":
		// Logged with the principal id at the detection site.
	default:
		m.log.ErrorContext(ctx, "account."+op+".fail", "err", err, "outcome", outcome)
	}
}

func outcomeOf(err error) string {
	switch Classify(err) {
	case nil:
		if err == nil {
			return "ok"
		}
		return "error"
	case ErrDuplicatePrincipal:
		return "duplicate"
	case ErrNoSuchPendingActivation:
		return "no_pending"
	case ErrInvalidCredentials:
		return "invalid_credentials"
	case ErrMalformedHash:
		return "malformed_hash"
	case ErrInvalidInput:
		return "invalid_input"
	case ErrCanceled:
		return "canceled"
	case ErrStoreUnavailable:
		return "unavailable"
	case ErrHasherInit:
		return "hasher_init"
	default:
		return "error"
	}
}
