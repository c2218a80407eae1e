// Package repository contains the data access implementations for the
// frontbill billing core: PostgreSQL for production and an in-memory
// store for development and tests.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/eric2umeh/frontbill/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// shiftLockID serializes shift-window reads against payment appends so a
// payment can never slip into a window that is being reconciled.
const shiftLockID int64 = 7243001

// ReconciliationBuilder turns the expected-by-method totals and the list
// of unposted house-account payments of a window into a complete record.
// It must be pure: the store calls it inside the reconcile transaction.
type ReconciliationBuilder func(expected map[model.PaymentMethod]int64, unposted []model.LedgerEntry) (*model.Reconciliation, error)

// PostgresRepository provides access to the PostgreSQL data store.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository and initializes the schema
// through embedded migrations.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close closes the connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateStaff creates a new staff member.
func (r *PostgresRepository) CreateStaff(ctx context.Context, login string, passwordHash []byte, role model.StaffRole) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO staff (login, password_hash, role) VALUES ($1, $2, $3) RETURNING id`,
		login, passwordHash, string(role),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrStaffExists, login)
		}
		return 0, fmt.Errorf("create staff: %w", err)
	}
	return id, nil
}

// GetStaffByLogin returns a staff member by login.
func (r *PostgresRepository) GetStaffByLogin(ctx context.Context, login string) (*model.Staff, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, role, created_at FROM staff WHERE login = $1`,
		login,
	)
	return scanStaff(row)
}

// GetStaffByID returns a staff member by identifier.
func (r *PostgresRepository) GetStaffByID(ctx context.Context, id int64) (*model.Staff, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, role, created_at FROM staff WHERE id = $1`,
		id,
	)
	return scanStaff(row)
}

func scanStaff(row pgx.Row) (*model.Staff, error) {
	var s model.Staff
	var role string
	err := row.Scan(&s.ID, &s.Login, &s.PasswordHash, &role, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, fmt.Errorf("get staff: %w", err)
	}
	s.Role = model.StaffRole(role)
	return &s, nil
}

// CreateOrganization registers a city-ledger counterparty with its credit limit.
func (r *PostgresRepository) CreateOrganization(ctx context.Context, name string, creditLimit int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO organizations (name, credit_limit) VALUES ($1, $2) RETURNING id`,
		name, creditLimit,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create organization: %w", err)
	}
	return id, nil
}

// GetOrganization returns an organization by identifier.
func (r *PostgresRepository) GetOrganization(ctx context.Context, id int64) (*model.Organization, error) {
	var o model.Organization
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, credit_limit, outstanding_balance, active, created_at
		 FROM organizations WHERE id = $1`,
		id,
	).Scan(&o.ID, &o.Name, &o.CreditLimit, &o.OutstandingBalance, &o.Active, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &o, nil
}

// AppendEntry appends a ledger entry inside a single transaction: the
// closed-shift check, the credit-limit check against the locked
// organization row, the insert and the matching city-ledger posting for
// house-account payments either all happen or none do.
func (r *PostgresRepository) AppendEntry(ctx context.Context, e *model.LedgerEntry) (*model.LedgerEntry, error) {
	var stored *model.LedgerEntry

	err := r.withRetry(ctx, func() error {
		var err error
		stored, err = r.appendEntryTx(ctx, e)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *PostgresRepository) appendEntryTx(ctx context.Context, e *model.LedgerEntry) (*model.LedgerEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if e.Kind == model.KindPayment {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, shiftLockID); err != nil {
			return nil, fmt.Errorf("acquire shift lock: %w", err)
		}

		var closed bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (
			   SELECT 1 FROM reconciliations
			   WHERE window_start <= $1 AND $1 < window_end
			 )`,
			e.OccurredAt,
		).Scan(&closed)
		if err != nil {
			return nil, fmt.Errorf("check closed shift: %w", err)
		}
		if closed {
			return nil, ErrShiftClosed
		}
	}

	// Org-side postings adjust the stored outstanding balance under a row
	// lock, so two concurrent near-limit charges cannot both pass the check.
	if e.Account.IsOrganization() && e.Kind != model.KindDeposit {
		if err := r.postToOrganization(ctx, tx, e.Account.OrganizationID, e.Amount, e.ManagerApproved); err != nil {
			return nil, err
		}
	}

	stored := *e
	stored.ID, err = insertEntry(ctx, tx, e)
	if err != nil {
		return nil, err
	}

	if e.Method == model.MethodHouseAccount {
		if err := r.postToOrganization(ctx, tx, e.PayerOrgID, -e.Amount, e.ManagerApproved); err != nil {
			return nil, err
		}

		mirror := model.LedgerEntry{
			Account:         model.AccountRef{OrganizationID: e.PayerOrgID},
			Kind:            model.KindServiceCharge,
			SubCategory:     "city_ledger",
			Amount:          -e.Amount,
			RefersTo:        &stored.ID,
			ManagerApproved: e.ManagerApproved,
			Description:     fmt.Sprintf("house-account posting for %s", e.Account),
			OccurredAt:      e.OccurredAt,
			RecordedBy:      e.RecordedBy,
		}
		if _, err := insertEntry(ctx, tx, &mirror); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &stored, nil
}

// postToOrganization locks the organization row, enforces the credit
// limit for debits and applies the delta to the outstanding balance.
func (r *PostgresRepository) postToOrganization(ctx context.Context, tx pgx.Tx, orgID, delta int64, managerApproved bool) error {
	var creditLimit, outstanding int64
	err := tx.QueryRow(ctx,
		`SELECT credit_limit, outstanding_balance FROM organizations WHERE id = $1 FOR UPDATE`,
		orgID,
	).Scan(&creditLimit, &outstanding)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: id %d", ErrOrganizationNotFound, orgID)
		}
		return fmt.Errorf("lock organization: %w", err)
	}

	if delta > 0 && !managerApproved && outstanding+delta > creditLimit {
		return fmt.Errorf("%w: outstanding %d + %d > limit %d",
			ErrCreditLimitExceeded, outstanding, delta, creditLimit)
	}

	_, err = tx.Exec(ctx,
		`UPDATE organizations SET outstanding_balance = outstanding_balance + $2 WHERE id = $1`,
		orgID, delta,
	)
	if err != nil {
		return fmt.Errorf("update outstanding balance: %w", err)
	}
	return nil
}

func insertEntry(ctx context.Context, tx pgx.Tx, e *model.LedgerEntry) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO ledger_entries
		   (booking_id, organization_id, kind, sub_category, amount, method,
		    payer_org_id, refers_to, manager_approved, description, occurred_at, recorded_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id`,
		nullID(e.Account.BookingID),
		nullID(e.Account.OrganizationID),
		string(e.Kind),
		e.SubCategory,
		e.Amount,
		nullMethod(e.Method),
		nullID(e.PayerOrgID),
		e.RefersTo,
		e.ManagerApproved,
		e.Description,
		e.OccurredAt,
		e.RecordedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	return id, nil
}

func nullID(v int64) *int64 {
	if v <= 0 {
		return nil
	}
	return &v
}

func nullMethod(m model.PaymentMethod) *string {
	if m == "" {
		return nil
	}
	s := string(m)
	return &s
}

func accountFilter(ref model.AccountRef) (string, int64) {
	if ref.IsOrganization() {
		return "organization_id", ref.OrganizationID
	}
	return "booking_id", ref.BookingID
}

// BalanceAsOf returns the account balance at the given instant: the sum
// of all non-deposit entry amounts with occurred_at <= at.
func (r *PostgresRepository) BalanceAsOf(ctx context.Context, ref model.AccountRef, at time.Time) (int64, error) {
	col, id := accountFilter(ref)

	var balance int64
	err := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT COALESCE(SUM(amount), 0)
		 FROM ledger_entries
		 WHERE %s = $1 AND kind <> 'DEPOSIT' AND occurred_at <= $2`, col),
		id, at,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("sum balance: %w", err)
	}
	return balance, nil
}

// AccountSummary returns the charge/payment totals and held deposits of
// an account. An ADJUSTMENT referencing a DEPOSIT entry releases it: the
// amount leaves the held bucket and enters the balance math.
func (r *PostgresRepository) AccountSummary(ctx context.Context, ref model.AccountRef) (*model.AccountSummary, error) {
	col, id := accountFilter(ref)

	s := model.AccountSummary{Account: ref}
	err := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT
		   COALESCE(SUM(CASE WHEN e.kind <> 'DEPOSIT' AND e.amount > 0 THEN e.amount END), 0),
		   COALESCE(SUM(CASE WHEN e.kind <> 'DEPOSIT' AND e.amount < 0 THEN -e.amount END), 0),
		   COALESCE(SUM(CASE WHEN e.kind = 'DEPOSIT' THEN e.amount
		                     WHEN e.kind = 'ADJUSTMENT' AND d.kind = 'DEPOSIT' THEN e.amount END), 0)
		 FROM ledger_entries e
		 LEFT JOIN ledger_entries d ON d.id = e.refers_to
		 WHERE e.%s = $1`, col),
		id,
	).Scan(&s.TotalCharges, &s.TotalPaid, &s.DepositsHeld)
	if err != nil {
		return nil, fmt.Errorf("sum account: %w", err)
	}
	s.Balance = s.TotalCharges - s.TotalPaid
	return &s, nil
}

// Statement returns the account entries within [from, to], ordered by
// occurred_at ascending with ties broken by id ascending.
func (r *PostgresRepository) Statement(ctx context.Context, ref model.AccountRef, from, to time.Time) ([]model.LedgerEntry, error) {
	col, id := accountFilter(ref)

	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, booking_id, organization_id, kind, sub_category, amount, method,
		   payer_org_id, refers_to, manager_approved, description, occurred_at, recorded_by
		 FROM ledger_entries
		 WHERE %s = $1 AND occurred_at >= $2 AND occurred_at <= $3
		 ORDER BY occurred_at, id`, col),
		id, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("select statement: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]model.LedgerEntry, error) {
	var res []model.LedgerEntry
	for rows.Next() {
		var (
			e          model.LedgerEntry
			bookingID  *int64
			orgID      *int64
			kind       string
			method     *string
			payerOrgID *int64
		)
		err := rows.Scan(&e.ID, &bookingID, &orgID, &kind, &e.SubCategory, &e.Amount, &method,
			&payerOrgID, &e.RefersTo, &e.ManagerApproved, &e.Description, &e.OccurredAt, &e.RecordedBy)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		if bookingID != nil {
			e.Account.BookingID = *bookingID
		}
		if orgID != nil {
			e.Account.OrganizationID = *orgID
		}
		e.Kind = model.EntryKind(kind)
		if method != nil {
			e.Method = model.PaymentMethod(*method)
		}
		if payerOrgID != nil {
			e.PayerOrgID = *payerOrgID
		}

		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// OutstandingAccounts returns every account whose balance is positive,
// largest debt first.
func (r *PostgresRepository) OutstandingAccounts(ctx context.Context) ([]model.AccountBalance, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT booking_id, organization_id, SUM(amount) AS balance
		 FROM ledger_entries
		 WHERE kind <> 'DEPOSIT'
		 GROUP BY booking_id, organization_id
		 HAVING SUM(amount) > 0
		 ORDER BY balance DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select outstanding: %w", err)
	}
	defer rows.Close()

	var res []model.AccountBalance
	for rows.Next() {
		var (
			b         model.AccountBalance
			bookingID *int64
			orgID     *int64
		)
		if err := rows.Scan(&bookingID, &orgID, &b.Balance); err != nil {
			return nil, fmt.Errorf("scan outstanding: %w", err)
		}
		if bookingID != nil {
			b.Account.BookingID = *bookingID
		}
		if orgID != nil {
			b.Account.OrganizationID = *orgID
		}
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// ExpectedByMethod sums collected payments per method over the half-open
// interval [from, to). Payment amounts are negative, so the sums are negated.
func (r *PostgresRepository) ExpectedByMethod(ctx context.Context, from, to time.Time) (map[model.PaymentMethod]int64, error) {
	return expectedByMethod(ctx, r.pool, from, to)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func expectedByMethod(ctx context.Context, q querier, from, to time.Time) (map[model.PaymentMethod]int64, error) {
	rows, err := q.Query(ctx,
		`SELECT method, COALESCE(SUM(-amount), 0)
		 FROM ledger_entries
		 WHERE kind = 'PAYMENT' AND occurred_at >= $1 AND occurred_at < $2
		 GROUP BY method`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("sum payments by method: %w", err)
	}
	defer rows.Close()

	res := make(map[model.PaymentMethod]int64)
	for rows.Next() {
		var method string
		var sum int64
		if err := rows.Scan(&method, &sum); err != nil {
			return nil, fmt.Errorf("scan payment sum: %w", err)
		}
		res[model.PaymentMethod(method)] = sum
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func unpostedHouseAccountPayments(ctx context.Context, q querier, from, to time.Time) ([]model.LedgerEntry, error) {
	rows, err := q.Query(ctx,
		`SELECT e.id, e.booking_id, e.organization_id, e.kind, e.sub_category, e.amount, e.method,
		   e.payer_org_id, e.refers_to, e.manager_approved, e.description, e.occurred_at, e.recorded_by
		 FROM ledger_entries e
		 WHERE e.kind = 'PAYMENT' AND e.method = 'HOUSE_ACCOUNT'
		   AND e.occurred_at >= $1 AND e.occurred_at < $2
		   AND NOT EXISTS (
		     SELECT 1 FROM ledger_entries m
		     WHERE m.refers_to = e.id AND m.organization_id IS NOT NULL
		   )
		 ORDER BY e.occurred_at, e.id`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("select unposted payments: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// CreateReconciliation closes out a shift window: inside one transaction
// it reads the window's payments, hands the totals to build and persists
// the resulting record. A window overlapping an existing record is
// rejected with ErrShiftClosed.
func (r *PostgresRepository) CreateReconciliation(ctx context.Context, w model.ShiftWindow, build ReconciliationBuilder) (*model.Reconciliation, error) {
	var rec *model.Reconciliation

	err := r.withRetry(ctx, func() error {
		var err error
		rec, err = r.createReconciliationTx(ctx, w, build)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *PostgresRepository) createReconciliationTx(ctx context.Context, w model.ShiftWindow, build ReconciliationBuilder) (*model.Reconciliation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, shiftLockID); err != nil {
		return nil, fmt.Errorf("acquire shift lock: %w", err)
	}

	var overlaps bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM reconciliations
		   WHERE window_start < $2 AND window_end > $1
		 )`,
		w.Start, w.End,
	).Scan(&overlaps)
	if err != nil {
		return nil, fmt.Errorf("check window overlap: %w", err)
	}
	if overlaps {
		return nil, ErrShiftClosed
	}

	expected, err := expectedByMethod(ctx, tx, w.Start, w.End)
	if err != nil {
		return nil, err
	}

	unposted, err := unpostedHouseAccountPayments(ctx, tx, w.Start, w.End)
	if err != nil {
		return nil, err
	}

	rec, err := build(expected, unposted)
	if err != nil {
		return nil, err
	}

	expectedJSON, err := json.Marshal(rec.Expected)
	if err != nil {
		return nil, fmt.Errorf("marshal expected: %w", err)
	}
	actualJSON, err := json.Marshal(rec.Actual)
	if err != nil {
		return nil, fmt.Errorf("marshal actual: %w", err)
	}
	varianceJSON, err := json.Marshal(rec.Variance)
	if err != nil {
		return nil, fmt.Errorf("marshal variance: %w", err)
	}
	flagsJSON, err := json.Marshal(rec.Flags)
	if err != nil {
		return nil, fmt.Errorf("marshal flags: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO reconciliations
		   (id, shift_type, window_start, window_end,
		    expected_by_method, actual_by_method, variance_by_method,
		    total_expected, total_actual, total_variance,
		    status, anomaly_flags, submitted_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at`,
		rec.ID, string(rec.Window.Type), rec.Window.Start, rec.Window.End,
		expectedJSON, actualJSON, varianceJSON,
		rec.TotalExpected, rec.TotalActual, rec.TotalVariance,
		string(rec.Status), flagsJSON, rec.SubmittedBy,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert reconciliation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return rec, nil
}

const reconciliationColumns = `id, shift_type, window_start, window_end,
  expected_by_method, actual_by_method, variance_by_method,
  total_expected, total_actual, total_variance,
  status, anomaly_flags, submitted_by, approved_by, approved_at, created_at`

func scanReconciliation(row pgx.Row) (*model.Reconciliation, error) {
	var (
		rec          model.Reconciliation
		shiftType    string
		status       string
		expectedJSON []byte
		actualJSON   []byte
		varianceJSON []byte
		flagsJSON    []byte
	)
	err := row.Scan(&rec.ID, &shiftType, &rec.Window.Start, &rec.Window.End,
		&expectedJSON, &actualJSON, &varianceJSON,
		&rec.TotalExpected, &rec.TotalActual, &rec.TotalVariance,
		&status, &flagsJSON, &rec.SubmittedBy, &rec.ApprovedBy, &rec.ApprovedAt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReconciliationNotFound
		}
		return nil, fmt.Errorf("scan reconciliation: %w", err)
	}

	rec.Window.Type = model.ShiftType(shiftType)
	rec.Status = model.ReconciliationStatus(status)

	if err := json.Unmarshal(expectedJSON, &rec.Expected); err != nil {
		return nil, fmt.Errorf("unmarshal expected: %w", err)
	}
	if err := json.Unmarshal(actualJSON, &rec.Actual); err != nil {
		return nil, fmt.Errorf("unmarshal actual: %w", err)
	}
	if err := json.Unmarshal(varianceJSON, &rec.Variance); err != nil {
		return nil, fmt.Errorf("unmarshal variance: %w", err)
	}
	if err := json.Unmarshal(flagsJSON, &rec.Flags); err != nil {
		return nil, fmt.Errorf("unmarshal flags: %w", err)
	}

	return &rec, nil
}

// GetReconciliation returns one reconciliation record by identifier.
func (r *PostgresRepository) GetReconciliation(ctx context.Context, id string) (*model.Reconciliation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+reconciliationColumns+` FROM reconciliations WHERE id = $1`,
		id,
	)
	return scanReconciliation(row)
}

// ListReconciliations returns the most recent reconciliation records.
func (r *PostgresRepository) ListReconciliations(ctx context.Context, limit int) ([]model.Reconciliation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+reconciliationColumns+` FROM reconciliations
		 ORDER BY window_start DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select reconciliations: %w", err)
	}
	defer rows.Close()

	return collectReconciliations(rows)
}

// ReconciliationsBetween returns records whose window starts within [from, to).
func (r *PostgresRepository) ReconciliationsBetween(ctx context.Context, from, to time.Time) ([]model.Reconciliation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+reconciliationColumns+` FROM reconciliations
		 WHERE window_start >= $1 AND window_start < $2
		 ORDER BY window_start`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("select reconciliations: %w", err)
	}
	defer rows.Close()

	return collectReconciliations(rows)
}

func collectReconciliations(rows pgx.Rows) ([]model.Reconciliation, error) {
	var res []model.Reconciliation
	for rows.Next() {
		rec, err := scanReconciliation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// ApproveReconciliation applies the approval transition under a row lock
// and returns the updated record.
func (r *PostgresRepository) ApproveReconciliation(ctx context.Context, id string, approvedBy int64) (*model.Reconciliation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM reconciliations WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReconciliationNotFound
		}
		return nil, fmt.Errorf("lock reconciliation: %w", err)
	}

	next, err := model.ReconciliationStatus(status).Approve()
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE reconciliations
		 SET status = $2, approved_by = $3, approved_at = now()
		 WHERE id = $1`,
		id, string(next), approvedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("update reconciliation: %w", err)
	}

	rec, err := scanReconciliation(tx.QueryRow(ctx,
		`SELECT `+reconciliationColumns+` FROM reconciliations WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return rec, nil
}
