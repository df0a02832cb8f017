package crm

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"epicrm.org/internal/auth"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPGStore(db), mock
}

func TestIdentityByEmail(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "full_name", "email", "password_hash", "name"}).
		AddRow(7, "Ada Lovelace", "ada@epicrm.test", "$2a$10$hash", "commercial")
	mock.ExpectQuery("select u.id, u.full_name, u.email, u.password_hash, d.name").
		WithArgs("ada@epicrm.test").
		WillReturnRows(rows)

	identity, err := store.IdentityByEmail(context.Background(), "ada@epicrm.test")
	if err != nil {
		t.Fatalf("IdentityByEmail: %v", err)
	}
	if identity.ID != 7 || identity.Department != auth.DepartmentCommercial {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	mock.ExpectQuery("select u.id, u.full_name, u.email, u.password_hash, d.name").
		WithArgs("nobody@epicrm.test").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.IdentityByEmail(context.Background(), "nobody@epicrm.test"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected auth.ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResolveOwnership(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("select sales_contact_id from clients").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"sales_contact_id"}).AddRow(1))
	ownership, err := store.ResolveOwnership(ctx, auth.ResourceClient, 10)
	if err != nil || ownership.OwnerID != 1 {
		t.Fatalf("client ownership: %+v, %v", ownership, err)
	}

	mock.ExpectQuery("select cl.sales_contact_id\\s+from contracts co join clients cl").
		WithArgs(int64(15)).
		WillReturnRows(sqlmock.NewRows([]string{"sales_contact_id"}).AddRow(1))
	ownership, err = store.ResolveOwnership(ctx, auth.ResourceContract, 15)
	if err != nil || ownership.OwnerID != 1 {
		t.Fatalf("contract ownership: %+v, %v", ownership, err)
	}

	// Event with no assigned support yet: NULL column, zero AssigneeID.
	mock.ExpectQuery("select cl.sales_contact_id, ev.support_contact_id").
		WithArgs(int64(20)).
		WillReturnRows(sqlmock.NewRows([]string{"sales_contact_id", "support_contact_id"}).AddRow(1, nil))
	ownership, err = store.ResolveOwnership(ctx, auth.ResourceEvent, 20)
	if err != nil || ownership.OwnerID != 1 || ownership.AssigneeID != 0 {
		t.Fatalf("event ownership: %+v, %v", ownership, err)
	}

	mock.ExpectQuery("select cl.sales_contact_id, ev.support_contact_id").
		WithArgs(int64(21)).
		WillReturnRows(sqlmock.NewRows([]string{"sales_contact_id", "support_contact_id"}).AddRow(1, 3))
	ownership, err = store.ResolveOwnership(ctx, auth.ResourceEvent, 21)
	if err != nil || ownership.AssigneeID != 3 {
		t.Fatalf("assigned event ownership: %+v, %v", ownership, err)
	}

	// Users carry no ownership.
	if _, err := store.ResolveOwnership(ctx, auth.ResourceUser, 1); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected auth.ErrInvalidInput, got %v", err)
	}

	mock.ExpectQuery("select sales_contact_id from clients").
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)
	if _, err := store.ResolveOwnership(ctx, auth.ResourceClient, 99); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected auth.ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateClientStampsReturnedIDs(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery("insert into clients").
		WithArgs("Carol Customer", "carol@client.test", "+331", "Carol & Co", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(10, now, now))

	client, err := store.CreateClient(context.Background(), Client{
		FullName:       "Carol Customer",
		Email:          "carol@client.test",
		Phone:          "+331",
		Enterprise:     "Carol & Co",
		SalesContactID: 1,
	})
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	if client.ID != 10 {
		t.Fatalf("unexpected id: %d", client.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateContractPartialSet(t *testing.T) {
	store, mock := newMockStore(t)

	amount := 1500.0
	mock.ExpectExec("update contracts set amount = .+, updated_at = now").
		WithArgs(amount, int64(15)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	now := time.Now()
	mock.ExpectQuery("select id, client_id, amount, remaining_amount, signed").
		WithArgs(int64(15)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "client_id", "amount", "remaining_amount", "signed", "sales_contact_id", "created_at", "updated_at",
		}).AddRow(15, 10, amount, 0.0, true, 1, now, now))

	contract, err := store.UpdateContract(context.Background(), 15, ContractUpdate{Amount: &amount})
	if err != nil {
		t.Fatalf("UpdateContract: %v", err)
	}
	if contract.Amount != amount {
		t.Fatalf("amount not updated: %v", contract.Amount)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteMissingRowIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("delete from events where id").
		WithArgs(int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.DeleteEvent(context.Background(), 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
