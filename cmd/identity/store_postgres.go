package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - InsertPending and CommitActivation each run in a single ReadCommitted transaction.
// - CommitActivation serializes concurrent activations on the activation row:
//   the DELETE that removes the row wins, every other caller sees zero rows.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultSchema is the schema created by the embedded migrations.
const DefaultSchema = "pastr"

// WithSchema sets the Postgres schema used by the store (default "pastr").
// The schema name is validated to be a legal PostgreSQL identifier.
// The store does not create tables: the schema must already be migrated,
// e.g. with migrations.Up(ctx, pool, schema).
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: DefaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

var pgTxOptions = pgx.TxOptions{
	IsoLevel:   pgx.ReadCommitted,
	AccessMode: pgx.ReadWrite,
}

// InsertPending inserts the principal and its activation record transactionally.
func (s *PostgresStore) InsertPending(ctx context.Context, p Principal) error {
	const op = "identity.PostgresStore.InsertPending"

	if p.ID.IsZero() || p.HandleNorm == "" || p.ContactNorm == "" {
		return invalid(op, "missing id, handle or contact")
	}
	if err := ctx.Err(); err != nil {
		return unavailable(op, err)
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgTxOptions)
	if err != nil {
		return unavailable(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	users := pgIdent(s.schema, "users")
	activations := pgIdent(s.schema, "user_activations")

	_, err = tx.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, handle, handle_norm, mail, mail_norm, password_hash, activated, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, false, $7)`,
		uuid.UUID(p.ID),
		p.Handle,
		p.HandleNorm,
		p.Contact,
		p.ContactNorm,
		p.PasswordHash,
		createdAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return ConflictError{Op: op, Field: field}
		}
		return unavailable(op, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+activations+` (user_id, created_at) VALUES ($1, $2)`,
		uuid.UUID(p.ID), createdAt,
	)
	if err != nil {
		return unavailable(op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable(op, err)
	}
	return nil
}

// ActivationExists reports whether an activation record exists for id.
func (s *PostgresStore) ActivationExists(ctx context.Context, id PrincipalID) (bool, error) {
	const op = "identity.PostgresStore.ActivationExists"

	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+pgIdent(s.schema, "user_activations")+` WHERE user_id = $1)`,
		uuid.UUID(id),
	).Scan(&exists)
	if err != nil {
		return false, unavailable(op, err)
	}
	return exists, nil
}

// CommitActivation deletes the activation record and flips the flag in one transaction.
func (s *PostgresStore) CommitActivation(ctx context.Context, id PrincipalID, now time.Time) error {
	const op = "identity.PostgresStore.CommitActivation"

	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgTxOptions)
	if err != nil {
		return unavailable(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The row lock taken by DELETE makes a concurrent activation wait here and
	// then observe zero affected rows once this transaction commits.
	tag, err := tx.Exec(ctx,
		`DELETE FROM `+pgIdent(s.schema, "user_activations")+` WHERE user_id = $1`,
		uuid.UUID(id),
	)
	if err != nil {
		return unavailable(op, err)
	}
	if tag.RowsAffected() == 0 {
		return OpError{Op: op, Kind: ErrNoSuchPendingActivation}
	}

	tag, err = tx.Exec(ctx,
		`UPDATE `+pgIdent(s.schema, "users")+`
		    SET activated = true, activated_at = $2
		  WHERE id = $1 AND activated = false`,
		uuid.UUID(id), now,
	)
	if err != nil {
		return unavailable(op, err)
	}
	if tag.RowsAffected() != 1 {
		// Activation record without a pending principal; roll back rather than commit half.
		return OpError{Op: op, Kind: ErrStoreUnavailable, Err: errors.New("activation record without pending principal")}
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable(op, err)
	}
	return nil
}

// Credentials returns the login view for a normalized handle.
func (s *PostgresStore) Credentials(ctx context.Context, handleNorm string) (Credentials, error) {
	const op = "identity.PostgresStore.Credentials"

	var (
		id  uuid.UUID
		out Credentials
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, password_hash, activated
		   FROM `+pgIdent(s.schema, "users")+`
		  WHERE handle_norm = $1`,
		handleNorm,
	).Scan(&id, &out.PasswordHash, &out.Activated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credentials{}, OpError{Op: op, Kind: ErrNotFound}
		}
		return Credentials{}, unavailable(op, err)
	}
	out.PrincipalID = PrincipalID(id)
	return out, nil
}

// PendingByContact returns the id of a pending principal by normalized mail address.
func (s *PostgresStore) PendingByContact(ctx context.Context, contactNorm string) (PrincipalID, error) {
	const op = "identity.PostgresStore.PendingByContact"

	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT u.id
		   FROM `+pgIdent(s.schema, "users")+` u
		   JOIN `+pgIdent(s.schema, "user_activations")+` a ON a.user_id = u.id
		  WHERE u.mail_norm = $1`,
		contactNorm,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PrincipalID{}, OpError{Op: op, Kind: ErrNotFound}
		}
		return PrincipalID{}, unavailable(op, err)
	}
	return PrincipalID(id), nil
}

// PrincipalByID returns the principal row.
func (s *PostgresStore) PrincipalByID(ctx context.Context, id PrincipalID) (Principal, error) {
	const op = "identity.PostgresStore.PrincipalByID"

	var (
		rawID uuid.UUID
		out   Principal
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, handle, handle_norm, mail, mail_norm, password_hash, activated, created_at, activated_at
		   FROM `+pgIdent(s.schema, "users")+`
		  WHERE id = $1`,
		uuid.UUID(id),
	).Scan(
		&rawID,
		&out.Handle,
		&out.HandleNorm,
		&out.Contact,
		&out.ContactNorm,
		&out.PasswordHash,
		&out.Activated,
		&out.CreatedAt,
		&out.ActivatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, OpError{Op: op, Kind: ErrNotFound}
		}
		return Principal{}, unavailable(op, err)
	}
	out.ID = PrincipalID(rawID)
	return out, nil
}

// ---- helpers ----

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names. Fall back to heuristic substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_users_handle_norm":
		return "handle", true
	case "uq_users_mail_norm":
		return "contact", true
	case "users_pkey":
		return conflictFieldID, true
	default:
		switch {
		case strings.Contains(c, "handle"):
			return "handle", true
		case strings.Contains(c, "mail"):
			return "contact", true
		default:
			return "unique", true
		}
	}
}
