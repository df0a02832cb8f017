package crm

import "context"

// Store describes the persistence operations the CRM service needs. The
// postgres implementation also provides the auth package's identity and
// ownership capabilities so authorization and persistence share one source.
type Store interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, id int64, upd UserUpdate) (User, error)
	DeleteUser(ctx context.Context, id int64) error

	CreateClient(ctx context.Context, c Client) (Client, error)
	GetClient(ctx context.Context, id int64) (Client, error)
	ListClients(ctx context.Context) ([]Client, error)
	UpdateClient(ctx context.Context, id int64, upd ClientUpdate) (Client, error)
	DeleteClient(ctx context.Context, id int64) error

	CreateContract(ctx context.Context, c Contract) (Contract, error)
	GetContract(ctx context.Context, id int64) (Contract, error)
	ListContracts(ctx context.Context) ([]Contract, error)
	UpdateContract(ctx context.Context, id int64, upd ContractUpdate) (Contract, error)
	DeleteContract(ctx context.Context, id int64) error

	CreateEvent(ctx context.Context, e Event) (Event, error)
	GetEvent(ctx context.Context, id int64) (Event, error)
	ListEvents(ctx context.Context) ([]Event, error)
	UpdateEvent(ctx context.Context, id int64, upd EventUpdate) (Event, error)
	AssignEventSupport(ctx context.Context, id, supportID int64) (Event, error)
	DeleteEvent(ctx context.Context, id int64) error
}
