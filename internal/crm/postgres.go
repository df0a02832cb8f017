package crm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"epicrm.org/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// PGStore implements Store on PostgreSQL. It also provides the identity and
// ownership capabilities consumed by the auth package, so authorization
// decisions and CRUD share one database.
type PGStore struct {
	db *sql.DB
}

var (
	_ Store                  = (*PGStore)(nil)
	_ auth.IdentityStore     = (*PGStore)(nil)
	_ auth.OwnershipResolver = (*PGStore)(nil)
)

// Open connects to PostgreSQL via the pgx stdlib driver.
func Open(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing connection pool (used by tests).
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) DB() *sql.DB { return s.db }

// auth capabilities --------------------------------------------------------

// IdentityByEmail is the credential verifier's lookup. The match is exact on
// the stored value.
func (s *PGStore) IdentityByEmail(ctx context.Context, email string) (auth.Identity, error) {
	var (
		identity   auth.Identity
		department string
	)
	err := s.db.QueryRowContext(ctx, `
		select u.id, u.full_name, u.email, u.password_hash, d.name
		from users u join departments d on d.id = u.department_id
		where u.email = $1`, email).
		Scan(&identity.ID, &identity.FullName, &identity.Email, &identity.PasswordHash, &department)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Identity{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Identity{}, err
	}
	identity.Department, err = auth.ParseDepartment(department)
	if err != nil {
		return auth.Identity{}, err
	}
	return identity, nil
}

// ResolveOwnership computes the owning commercial (directly for clients,
// via the client for contracts, via contract->client for events) and the
// assigned support for events.
func (s *PGStore) ResolveOwnership(ctx context.Context, kind auth.ResourceKind, id int64) (auth.Ownership, error) {
	ownership := auth.Ownership{Kind: kind, ID: id}
	var err error
	switch kind {
	case auth.ResourceClient:
		err = s.db.QueryRowContext(ctx,
			`select sales_contact_id from clients where id = $1`, id).
			Scan(&ownership.OwnerID)
	case auth.ResourceContract:
		err = s.db.QueryRowContext(ctx, `
			select cl.sales_contact_id
			from contracts co join clients cl on cl.id = co.client_id
			where co.id = $1`, id).
			Scan(&ownership.OwnerID)
	case auth.ResourceEvent:
		var assignee sql.NullInt64
		err = s.db.QueryRowContext(ctx, `
			select cl.sales_contact_id, ev.support_contact_id
			from events ev
			join contracts co on co.id = ev.contract_id
			join clients cl on cl.id = co.client_id
			where ev.id = $1`, id).
			Scan(&ownership.OwnerID, &assignee)
		if assignee.Valid {
			ownership.AssigneeID = assignee.Int64
		}
	default:
		return auth.Ownership{}, fmt.Errorf("%w: resource kind %q has no ownership", auth.ErrInvalidInput, kind)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Ownership{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Ownership{}, err
	}
	return ownership, nil
}

// Users ---------------------------------------------------------------------

const userColumns = `u.id, u.full_name, u.email, u.password_hash, d.name, u.created_at, u.updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var (
		u          User
		department string
	)
	if err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &department, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	u.Department = auth.Department(department)
	return u, nil
}

func (s *PGStore) CreateUser(ctx context.Context, u User) (User, error) {
	err := s.db.QueryRowContext(ctx, `
		insert into users(full_name, email, password_hash, department_id)
		values ($1, $2, $3, (select id from departments where name = $4))
		returning id, created_at, updated_at`,
		u.FullName, u.Email, u.PasswordHash, string(u.Department)).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return User{}, fmt.Errorf("%w: email %s", ErrConflict, u.Email)
		}
		return User{}, err
	}
	return u, nil
}

func (s *PGStore) GetUser(ctx context.Context, id int64) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users u join departments d on d.id = u.department_id
		where u.id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *PGStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+`
		from users u join departments d on d.id = u.department_id
		order by u.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PGStore) UpdateUser(ctx context.Context, id int64, upd UserUpdate) (User, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.FullName != nil {
		sets = append(sets, fmt.Sprintf("full_name = $%d", idx))
		args = append(args, *upd.FullName)
		idx++
	}
	if upd.Email != nil {
		sets = append(sets, fmt.Sprintf("email = $%d", idx))
		args = append(args, *upd.Email)
		idx++
	}
	if upd.Password != nil {
		sets = append(sets, fmt.Sprintf("password_hash = $%d", idx))
		args = append(args, *upd.Password)
		idx++
	}
	if upd.Department != nil {
		sets = append(sets, fmt.Sprintf("department_id = (select id from departments where name = $%d)", idx))
		args = append(args, string(*upd.Department))
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update users set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return User{}, ErrConflict
			}
			return User{}, err
		}
		if aff, err := res.RowsAffected(); err != nil {
			return User{}, err
		} else if aff == 0 {
			return User{}, ErrNotFound
		}
	}
	return s.GetUser(ctx, id)
}

func (s *PGStore) DeleteUser(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "users", id)
}

// Clients -------------------------------------------------------------------

const clientColumns = `id, full_name, email, phone, enterprise, sales_contact_id, created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.FullName, &c.Email, &c.Phone, &c.Enterprise, &c.SalesContactID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *PGStore) CreateClient(ctx context.Context, c Client) (Client, error) {
	err := s.db.QueryRowContext(ctx, `
		insert into clients(full_name, email, phone, enterprise, sales_contact_id)
		values ($1, $2, $3, $4, $5)
		returning id, created_at, updated_at`,
		c.FullName, c.Email, c.Phone, c.Enterprise, c.SalesContactID).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return Client{}, fmt.Errorf("%w: email %s", ErrConflict, c.Email)
			case pgErrForeignKeyViolation:
				return Client{}, fmt.Errorf("%w: sales contact %d", ErrInvalidInput, c.SalesContactID)
			}
		}
		return Client{}, err
	}
	return c, nil
}

func (s *PGStore) GetClient(ctx context.Context, id int64) (Client, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+clientColumns+` from clients where id = $1`, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Client{}, ErrNotFound
	}
	return c, err
}

func (s *PGStore) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+clientColumns+` from clients order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (s *PGStore) UpdateClient(ctx context.Context, id int64, upd ClientUpdate) (Client, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.FullName != nil {
		sets = append(sets, fmt.Sprintf("full_name = $%d", idx))
		args = append(args, *upd.FullName)
		idx++
	}
	if upd.Email != nil {
		sets = append(sets, fmt.Sprintf("email = $%d", idx))
		args = append(args, *upd.Email)
		idx++
	}
	if upd.Phone != nil {
		sets = append(sets, fmt.Sprintf("phone = $%d", idx))
		args = append(args, *upd.Phone)
		idx++
	}
	if upd.Enterprise != nil {
		sets = append(sets, fmt.Sprintf("enterprise = $%d", idx))
		args = append(args, *upd.Enterprise)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update clients set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return Client{}, ErrConflict
			}
			return Client{}, err
		}
		if aff, err := res.RowsAffected(); err != nil {
			return Client{}, err
		} else if aff == 0 {
			return Client{}, ErrNotFound
		}
	}
	return s.GetClient(ctx, id)
}

func (s *PGStore) DeleteClient(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "clients", id)
}

// Contracts -----------------------------------------------------------------

const contractColumns = `id, client_id, amount, remaining_amount, signed, sales_contact_id, created_at, updated_at`

func scanContract(row interface{ Scan(...any) error }) (Contract, error) {
	var c Contract
	err := row.Scan(&c.ID, &c.ClientID, &c.Amount, &c.RemainingAmount, &c.Signed, &c.SalesContactID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *PGStore) CreateContract(ctx context.Context, c Contract) (Contract, error) {
	err := s.db.QueryRowContext(ctx, `
		insert into contracts(client_id, amount, remaining_amount, signed, sales_contact_id)
		values ($1, $2, $3, $4, $5)
		returning id, created_at, updated_at`,
		c.ClientID, c.Amount, c.RemainingAmount, c.Signed, c.SalesContactID).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return Contract{}, fmt.Errorf("%w: client %d", ErrInvalidInput, c.ClientID)
		}
		return Contract{}, err
	}
	return c, nil
}

func (s *PGStore) GetContract(ctx context.Context, id int64) (Contract, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+contractColumns+` from contracts where id = $1`, id)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Contract{}, ErrNotFound
	}
	return c, err
}

func (s *PGStore) ListContracts(ctx context.Context) ([]Contract, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+contractColumns+` from contracts order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

func (s *PGStore) UpdateContract(ctx context.Context, id int64, upd ContractUpdate) (Contract, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Amount != nil {
		sets = append(sets, fmt.Sprintf("amount = $%d", idx))
		args = append(args, *upd.Amount)
		idx++
	}
	if upd.RemainingAmount != nil {
		sets = append(sets, fmt.Sprintf("remaining_amount = $%d", idx))
		args = append(args, *upd.RemainingAmount)
		idx++
	}
	if upd.Signed != nil {
		sets = append(sets, fmt.Sprintf("signed = $%d", idx))
		args = append(args, *upd.Signed)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update contracts set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return Contract{}, err
		}
		if aff, err := res.RowsAffected(); err != nil {
			return Contract{}, err
		} else if aff == 0 {
			return Contract{}, ErrNotFound
		}
	}
	return s.GetContract(ctx, id)
}

func (s *PGStore) DeleteContract(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "contracts", id)
}

// Events --------------------------------------------------------------------

const eventColumns = `id, name, contract_id, client_id, start_at, end_at, location, attendees, notes, support_contact_id, created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }) (Event, error) {
	var (
		e        Event
		assignee sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.Name, &e.ContractID, &e.ClientID, &e.Start, &e.End,
		&e.Location, &e.Attendees, &e.Notes, &assignee, &e.CreatedAt, &e.UpdatedAt)
	if assignee.Valid {
		e.SupportContactID = assignee.Int64
	}
	return e, err
}

func (s *PGStore) CreateEvent(ctx context.Context, e Event) (Event, error) {
	err := s.db.QueryRowContext(ctx, `
		insert into events(name, contract_id, client_id, start_at, end_at, location, attendees, notes)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning id, created_at, updated_at`,
		e.Name, e.ContractID, e.ClientID, e.Start, e.End, e.Location, e.Attendees, e.Notes).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return Event{}, fmt.Errorf("%w: contract %d", ErrInvalidInput, e.ContractID)
		}
		return Event{}, err
	}
	return e, nil
}

func (s *PGStore) GetEvent(ctx context.Context, id int64) (Event, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+eventColumns+` from events where id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	return e, err
}

func (s *PGStore) ListEvents(ctx context.Context) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+eventColumns+` from events order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PGStore) UpdateEvent(ctx context.Context, id int64, upd EventUpdate) (Event, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Start != nil {
		sets = append(sets, fmt.Sprintf("start_at = $%d", idx))
		args = append(args, *upd.Start)
		idx++
	}
	if upd.End != nil {
		sets = append(sets, fmt.Sprintf("end_at = $%d", idx))
		args = append(args, *upd.End)
		idx++
	}
	if upd.Location != nil {
		sets = append(sets, fmt.Sprintf("location = $%d", idx))
		args = append(args, *upd.Location)
		idx++
	}
	if upd.Attendees != nil {
		sets = append(sets, fmt.Sprintf("attendees = $%d", idx))
		args = append(args, *upd.Attendees)
		idx++
	}
	if upd.Notes != nil {
		sets = append(sets, fmt.Sprintf("notes = $%d", idx))
		args = append(args, *upd.Notes)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update events set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return Event{}, err
		}
		if aff, err := res.RowsAffected(); err != nil {
			return Event{}, err
		} else if aff == 0 {
			return Event{}, ErrNotFound
		}
	}
	return s.GetEvent(ctx, id)
}

func (s *PGStore) AssignEventSupport(ctx context.Context, id, supportID int64) (Event, error) {
	res, err := s.db.ExecContext(ctx,
		`update events set support_contact_id = $1, updated_at = now() where id = $2`,
		supportID, id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return Event{}, fmt.Errorf("%w: support contact %d", ErrInvalidInput, supportID)
		}
		return Event{}, err
	}
	if aff, err := res.RowsAffected(); err != nil {
		return Event{}, err
	} else if aff == 0 {
		return Event{}, ErrNotFound
	}
	return s.GetEvent(ctx, id)
}

func (s *PGStore) DeleteEvent(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "events", id)
}

// helpers -------------------------------------------------------------------

func (s *PGStore) deleteByID(ctx context.Context, table string, id int64) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`delete from %s where id = $1`, table), id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: %s %d is still referenced", ErrConflict, strings.TrimSuffix(table, "s"), id)
		}
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return ErrNotFound
	}
	return nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
