package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/program-registrations/internal/model"
)

// activeRegistrationIndex is the partial unique index backing the
// one-active-registration-per-identity rule.
const activeRegistrationIndex = "registrations_active_identity_idx"

const resourceColumns = `id, kind, title, description, capacity, registration_deadline,
	starts_at, ends_at, requires_approval, status, created_at, updated_at`

const registrationColumns = `id, resource_id, identity, full_name, phone, organization, notes,
	payment_status, status, attended, attendance_percentage, rating, feedback,
	certificate_issued, certificate_issued_at, cancelled_at, created_at, updated_at`

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func scanResource(row pgx.Row) (*model.Resource, error) {
	var r model.Resource
	err := row.Scan(&r.ID, &r.Kind, &r.Title, &r.Description, &r.Capacity, &r.RegistrationDeadline,
		&r.StartsAt, &r.EndsAt, &r.RequiresApproval, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var g model.Registration
	err := row.Scan(&g.ID, &g.ResourceID, &g.Identity, &g.FullName, &g.Phone, &g.Organization, &g.Notes,
		&g.PaymentStatus, &g.Status, &g.Attended, &g.AttendancePercentage, &g.Rating, &g.Feedback,
		&g.CertificateIssued, &g.CertificateIssuedAt, &g.CancelledAt, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// withTx runs fn in a transaction and commits only if fn succeeds. Any error,
// including a cancelled context, rolls the transaction back.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// lockResource takes the row-level exclusive lock that serialises every
// write to a resource's registrations. Concurrent lockers block until the
// holder commits or rolls back.
func lockResource(ctx context.Context, tx pgx.Tx, id string) (*model.Resource, error) {
	res, err := scanResource(tx.QueryRow(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ResourceNotFound(id)
		}
		return nil, fmt.Errorf("lock resource row: %w", err)
	}
	return res, nil
}

// ─── Resources ───────────────────────────────────────────────────────────────

// CreateResource inserts a new resource.
func (s *PostgresStore) CreateResource(ctx context.Context, r model.Resource) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO resources (`+resourceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, string(r.Kind), r.Title, r.Description, r.Capacity, r.RegistrationDeadline,
		r.StartsAt, r.EndsAt, r.RequiresApproval, string(r.Status), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert resource: %w", err)
	}
	return nil
}

// GetResource returns a single resource or model.ErrNotFound.
func (s *PostgresStore) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	res, err := scanResource(s.db.QueryRow(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ResourceNotFound(id)
		}
		return nil, fmt.Errorf("get resource: %w", err)
	}
	return res, nil
}

// ListResources returns resources ordered by start time.
func (s *PostgresStore) ListResources(ctx context.Context, f model.ResourceFilter) ([]model.Resource, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	q := `SELECT ` + resourceColumns + ` FROM resources`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY starts_at ASC, created_at ASC"

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	var out []model.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpdateResource locks the resource row, applies fn and writes the result.
func (s *PostgresStore) UpdateResource(ctx context.Context, id string, fn ResourceMutator) (*model.Resource, error) {
	var updated model.Resource
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		cur, err := lockResource(ctx, tx, id)
		if err != nil {
			return err
		}
		admitted, err := countActive(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err := fn(*cur, admitted)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE resources
			 SET title = $2, description = $3, capacity = $4, registration_deadline = $5,
			     starts_at = $6, ends_at = $7, requires_approval = $8, status = $9, updated_at = $10
			 WHERE id = $1`,
			id, next.Title, next.Description, next.Capacity, next.RegistrationDeadline,
			next.StartsAt, next.EndsAt, next.RequiresApproval, string(next.Status), next.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update resource: %w", err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteResource removes a resource; registrations go with it through the
// ON DELETE CASCADE foreign key.
func (s *PostgresStore) DeleteResource(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ResourceNotFound(id)
	}
	return nil
}

// ─── Admission ───────────────────────────────────────────────────────────────

// pgAdmission is the AdmissionTx for one locked resource row.
type pgAdmission struct {
	tx  pgx.Tx
	res model.Resource
}

func (a *pgAdmission) Resource() model.Resource { return a.res }

func (a *pgAdmission) ActiveRegistration(ctx context.Context, identity string) (*model.Registration, error) {
	reg, err := scanRegistration(a.tx.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE resource_id = $1 AND identity = $2 AND status IN ('pending', 'confirmed')
		 LIMIT 1`,
		a.res.ID, identity))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return reg, nil
}

func (a *pgAdmission) CountActive(ctx context.Context) (int, error) {
	return countActive(ctx, a.tx, a.res.ID)
}

// Insert runs inside a savepoint so a unique-index violation leaves the
// transaction usable for looking up the row that holds the slot.
func (a *pgAdmission) Insert(ctx context.Context, g model.Registration) error {
	sp, err := a.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	_, err = sp.Exec(ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		g.ID, g.ResourceID, g.Identity, g.FullName, g.Phone, g.Organization, g.Notes,
		string(g.PaymentStatus), string(g.Status), g.Attended, g.AttendancePercentage, g.Rating, g.Feedback,
		g.CertificateIssued, g.CertificateIssuedAt, g.CancelledAt, g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		_ = sp.Rollback(ctx)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == activeRegistrationIndex {
			dup := &model.DuplicateRegistrationError{ResourceID: g.ResourceID}
			if existing, lerr := a.ActiveRegistration(ctx, g.Identity); lerr == nil && existing != nil {
				dup.ExistingID = existing.ID
			}
			return dup
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func countActive(ctx context.Context, tx pgx.Tx, resourceID string) (int, error) {
	var n int
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations
		 WHERE resource_id = $1 AND status IN ('pending', 'confirmed')`,
		resourceID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active registrations: %w", err)
	}
	return n, nil
}

// Admit performs a concurrency-safe admission inside a transaction.
//
// A plain read-then-insert lets two requests both observe a free slot and
// both insert. SELECT … FOR UPDATE on the resource row makes every other
// admission for the same resource wait until this transaction commits or
// rolls back, so the ledger fn reads cannot change underneath it.
// The partial unique index on (resource_id, identity) for active statuses
// is the backstop for the uniqueness rule.
func (s *PostgresStore) Admit(ctx context.Context, resourceID string, fn func(ctx context.Context, tx AdmissionTx) error) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		res, err := lockResource(ctx, tx, resourceID)
		if err != nil {
			return err
		}
		return fn(ctx, &pgAdmission{tx: tx, res: *res})
	})
}

// ─── Registrations ───────────────────────────────────────────────────────────

// GetRegistration returns a single registration or model.ErrNotFound.
func (s *PostgresStore) GetRegistration(ctx context.Context, id string) (*model.Registration, error) {
	reg, err := scanRegistration(s.db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.RegistrationNotFound(id)
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

// ListRegistrations returns a resource's registrations in submission order.
func (s *PostgresStore) ListRegistrations(ctx context.Context, resourceID string, f model.RegistrationFilter) ([]model.Registration, error) {
	q := `SELECT ` + registrationColumns + ` FROM registrations WHERE resource_id = $1`
	args := []any{resourceID}
	if f.Status != "" {
		q += ` AND status = $2`
		args = append(args, string(f.Status))
	}
	q += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// UpdateRegistration locks the owning resource row and then the
// registration row, in that order, so it queues behind admissions and
// resource deletes for the same resource.
func (s *PostgresStore) UpdateRegistration(ctx context.Context, id string, fn RegistrationMutator) (*model.Registration, error) {
	var updated model.Registration
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var resourceID string
		err := tx.QueryRow(ctx, `SELECT resource_id FROM registrations WHERE id = $1`, id).Scan(&resourceID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.RegistrationNotFound(id)
			}
			return fmt.Errorf("lookup registration: %w", err)
		}
		res, err := lockResource(ctx, tx, resourceID)
		if err != nil {
			return err
		}
		cur, err := scanRegistration(tx.QueryRow(ctx,
			`SELECT `+registrationColumns+` FROM registrations WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.RegistrationNotFound(id)
			}
			return fmt.Errorf("lock registration row: %w", err)
		}

		next, err := fn(*cur, *res)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE registrations
			 SET status = $2, attended = $3, attendance_percentage = $4, rating = $5, feedback = $6,
			     certificate_issued = $7, certificate_issued_at = $8, cancelled_at = $9, updated_at = $10
			 WHERE id = $1`,
			id, string(next.Status), next.Attended, next.AttendancePercentage, next.Rating, next.Feedback,
			next.CertificateIssued, next.CertificateIssuedAt, next.CancelledAt, next.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update registration: %w", err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteRegistration hard-deletes a registration.
func (s *PostgresStore) DeleteRegistration(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.RegistrationNotFound(id)
	}
	return nil
}

// ─── Aggregates ──────────────────────────────────────────────────────────────

// CountRegistrations groups a resource's registrations by status.
func (s *PostgresStore) CountRegistrations(ctx context.Context, resourceID string) (RegistrationCounts, error) {
	counts := RegistrationCounts{ByStatus: map[model.RegistrationStatus]int{}}
	rows, err := s.db.Query(ctx,
		`SELECT status, COUNT(*), COUNT(*) FILTER (WHERE certificate_issued)
		 FROM registrations WHERE resource_id = $1
		 GROUP BY status`,
		resourceID,
	)
	if err != nil {
		return counts, fmt.Errorf("count registrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status    string
			n, issued int
		)
		if err := rows.Scan(&status, &n, &issued); err != nil {
			return counts, fmt.Errorf("scan registration count: %w", err)
		}
		counts.ByStatus[model.RegistrationStatus(status)] = n
		counts.Certificates += issued
	}
	return counts, rows.Err()
}

// CountResources groups all resources by kind and status.
func (s *PostgresStore) CountResources(ctx context.Context) ([]ResourceCount, error) {
	rows, err := s.db.Query(ctx,
		`SELECT kind, status, COUNT(*) FROM resources GROUP BY kind, status ORDER BY kind, status`)
	if err != nil {
		return nil, fmt.Errorf("count resources: %w", err)
	}
	defer rows.Close()

	var out []ResourceCount
	for rows.Next() {
		var kind, status string
		var n int
		if err := rows.Scan(&kind, &status, &n); err != nil {
			return nil, fmt.Errorf("scan resource count: %w", err)
		}
		out = append(out, ResourceCount{Kind: model.ResourceKind(kind), Status: model.ResourceStatus(status), Count: n})
	}
	return out, rows.Err()
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
