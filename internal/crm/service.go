package crm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"epicrm.org/internal/audit"
	"epicrm.org/internal/auth"
)

// Service is the CRM resource layer. Every operation passes through the
// access decision engine before touching the store; the engine's decision is
// final for the request.
type Service struct {
	store Store
	authz *auth.Service
}

// NewService constructs the CRM service.
func NewService(store Store, authz *auth.Service) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("crm: store is required")
	}
	if authz == nil {
		return nil, fmt.Errorf("crm: auth service is required")
	}
	return &Service{store: store, authz: authz}, nil
}

// Users ---------------------------------------------------------------------

// UserInput carries the fields needed to create a collaborator account.
type UserInput struct {
	FullName   string
	Email      string
	Password   string
	Department auth.Department
}

func (s *Service) CreateUser(ctx context.Context, token string, in UserInput) (User, error) {
	claims, err := s.authz.Authorize(ctx, token, auth.ResourceUser, auth.ActionCreate, nil)
	if err != nil {
		return User{}, err
	}
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	if in.FullName == "" {
		return User{}, fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if !in.Department.Valid() {
		return User{}, fmt.Errorf("%w: unknown department %q", ErrInvalidInput, in.Department)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	user, err := s.store.CreateUser(ctx, User{
		FullName:     in.FullName,
		Email:        in.Email,
		PasswordHash: hash,
		Department:   in.Department,
	})
	if err != nil {
		return User{}, err
	}
	s.auditEvent(ctx, claims, "crm.user.create", auth.ResourceUser, user.ID)
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, token string, id int64) (User, error) {
	if _, err := s.authz.Authorize(ctx, token, auth.ResourceUser, auth.ActionRead, nil); err != nil {
		return User{}, err
	}
	return s.store.GetUser(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, token string) ([]User, error) {
	if _, err := s.authz.Authorize(ctx, token, auth.ResourceUser, auth.ActionList, nil); err != nil {
		return nil, err
	}
	return s.store.ListUsers(ctx)
}

func (s *Service) UpdateUser(ctx context.Context, token string, id int64, upd UserUpdate) (User, error) {
	claims, err := s.authz.Authorize(ctx, token, auth.ResourceUser, auth.ActionUpdate, nil)
	if err != nil {
		return User{}, err
	}
	if upd.FullName != nil {
		name := strings.TrimSpace(*upd.FullName)
		if name == "" {
			return User{}, fmt.Errorf("%w: full name is required", ErrInvalidInput)
		}
		upd.FullName = &name
	}
	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if email == "" || !strings.Contains(email, "@") {
			return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		upd.Email = &email
	}
	if upd.Department != nil && !upd.Department.Valid() {
		return User{}, fmt.Errorf("%w: unknown department %q", ErrInvalidInput, *upd.Department)
	}
	if upd.Password != nil {
		hash, err := auth.HashPassword(*upd.Password)
		if err != nil {
			return User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		upd.Password = &hash
	}
	user, err := s.store.UpdateUser(ctx, id, upd)
	if err != nil {
		return User{}, err
	}
	s.auditEvent(ctx, claims, "crm.user.update", auth.ResourceUser, id)
	return user, nil
}

func (s *Service) DeleteUser(ctx context.Context, token string, id int64) error {
	claims, err := s.authz.Authorize(ctx, token, auth.ResourceUser, auth.ActionDelete, nil)
	if err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.auditEvent(ctx, claims, "crm.user.delete", auth.ResourceUser, id)
	return nil
}

// Clients -------------------------------------------------------------------

// ClientInput carries the fields needed to create a client record.
type ClientInput struct {
	FullName   string
	Email      string
	Phone      string
	Enterprise string
}

// CreateClient stamps the creating commercial as the client's owner.
func (s *Service) CreateClient(ctx context.Context, token string, in ClientInput) (Client, error) {
	claims, err := s.authz.Authorize(ctx, token, auth.ResourceClient, auth.ActionCreate, nil)
	if err != nil {
		return Client{}, err
	}
	actorID, err := claims.IdentityID()
	if err != nil {
		return Client{}, err
	}
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	if in.FullName == "" {
		return Client{}, fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return Client{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Phone) == "" {
		return Client{}, fmt.Errorf("%w: phone is required", ErrInvalidInput)
	}
	client, err := s.store.CreateClient(ctx, Client{
		FullName:       in.FullName,
		Email:          in.Email,
		Phone:          strings.TrimSpace(in.Phone),
		Enterprise:     strings.TrimSpace(in.Enterprise),
		SalesContactID: actorID,
	})
	if err != nil {
		return Client{}, err
	}
	s.auditEvent(ctx, claims, "crm.client.create", auth.ResourceClient, client.ID)
	return client, nil
}

func (s *Service) GetClient(ctx context.Context, token string, id int64) (Client, error) {
	if _, err := s.authz.Authorize(ctx, token, auth.ResourceClient, auth.ActionRead, nil); err != nil {
		return Client{}, err
	}
	return s.store.GetClient(ctx, id)
}

func (s *Service) ListClients(ctx context.Context, token string) ([]Client, error) {
	if _, err := s.authz.Authorize(ctx, token, auth.ResourceClient, auth.ActionList, nil); err != nil {
		return nil, err
	}
	return s.store.ListClients(ctx)
}

func (s *Service) UpdateClient(ctx context.Context, token string, id int64, upd ClientUpdate) (Client, error) {
	target := &auth.Target{Kind: auth.ResourceClient, ID: id}
	claims, err := s.authz.Authorize(ctx, token, auth.ResourceClient, auth.ActionUpdate, target)
	if err != nil {
		return Client{}, err
	}
	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if email == "" || !strings.Contains(email, "@") {
			return Client{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		upd.Email = &email
	}
	client, err := s.store.UpdateClient(ctx, id, upd)
	if err != nil {
		return Client{}, err
	}
	s.auditEvent(ctx, claims, "crm.client.update", auth.ResourceClient, id)
	return client, nil
}

func (s *Service) DeleteClient(ctx context.Context, token string, id int64) error {
	target := &auth.Target{Kind: auth.ResourceClient, ID: id}
	claims, err := s.authz.Authorize(ctx, token, auth.ResourceClient, auth.ActionDelete, target)
	if err != nil {
		return err
	}
	if err := s.store.DeleteClient(ctx, id); err != nil {
		return err
	}
	s.auditEvent(ctx, claims, "crm.client.delete", auth.ResourceClient, id)
	return nil
}

// Contracts -----------------------------------------------------------------

// ContractInput carries the fields needed to create a contract.
type ContractInput struct {
	ClientID        int64
	Amount          float64
	RemainingAmount float64
	Signed          bool
}

// CreateContract derives the sales contact from the client's owning
// commercial; it is never supplied by the caller.
func (s *Service) CreateContract(ctx context.Context, token string, in ContractInput) (Contract, error) {
	claims, err := s.authz.Authorize(ctx, token, auth.ResourceContract, auth.ActionCreate, nil)
	if err != nil {
		return Contract{}, err
	}
	if in.Amount < 0 || in.RemainingAmount < 0 {
		return Contract{}, fmt.Errorf("%w: amounts must not be negative", ErrInvalidInput)
	}
	client, err := s.store.GetClient(ctx, in.ClientID)
	if err != nil {
		return Contract{}, fmt.Errorf("contract client %d: %w", in.ClientID, err)
	}
	contract, err := s.store.CreateContract(ctx, Contract{
		ClientID:        client.ID,
		Amount:          in.Amount,
		RemainingAmount: in.RemainingAmount,
		Signed:          in.Signed,
		SalesContactID:  client.SalesContactID,
	})
	if err != nil {
		return Contract{}, err
	}
	s.auditEvent(ctx, claims, "crm.contract.create", auth.ResourceContract, contract.ID)
	return contract, nil
}

func (s *Service) GetContract(ctx context.Context, token string, id int64) (Contract, error) {
	if _, err := s.authz.Authorize(ctx, token, auth.ResourceContract, auth.ActionRead, nil); err != nil {
		return Contract{}, err
	}
	return s.store.GetContract(ctx, id)
}

func (s *Service) ListContracts(ctx context.Context, token string) ([]Contract, error) {
	if _, err := s.authz.Authorize(ctx, token, auth.ResourceContract, auth.ActionList, nil); err != nil {
		return nil, err
	}
	return s.store.ListContracts(ctx)
}

func (s *Service) UpdateContract(ctx context.Context, token string, id int64, upd ContractUpdate) (Contract, error) {
	target := &auth.Target{Kind: auth.ResourceContract, ID: id}
	claims, err := s.authz.Authorize(ctx, token, auth.ResourceContract, auth.ActionUpdate, target)
	if err != nil {
		return Contract{}, err
	}
	if upd.Amount != nil && *upd.Amount < 0 {
		return Contract{}, fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	if upd.RemainingAmount != nil && *upd.RemainingAmount < 0 {
		return Contract{}, fmt.Errorf("%w: remaining amount must not be negative", ErrInvalidInput)
	}
	contract, err := s.store.UpdateContract(ctx, id, upd)
	if err != nil {
		return Contract{}, err
	}
	s.auditEvent(ctx, claims, "crm.contract.update", auth.ResourceContract, id)
	return contract, nil
}

func (s *Service) DeleteContract(ctx context.Context, token string, id int64) error {
	target := &auth.Target{Kind: auth.ResourceContract, ID: id}
	claims, err := s.authz.Authorize(ctx, token, auth.ResourceContract, auth.ActionDelete, target)
	if err != nil {
		return err
	}
	if err := s.store.DeleteContract(ctx, id); err != nil {
		return err
	}
	s.auditEvent(ctx, claims, "crm.contract.delete", auth.ResourceContract, id)
	return nil
}

// Events --------------------------------------------------------------------

// EventInput carries the fields needed to create an event. The client is
// derived from the contract, never supplied directly.
type EventInput struct {
	Name       string
	ContractID int64
	Start      time.Time
	End        time.Time
	Location   string
	Attendees  int
	Notes      string
}

func (s *Service) CreateEvent(ctx context.Context, token string, in EventInput) (Event, error) {
	claims, err := s.authz.Authorize(ctx, token, auth.ResourceEvent, auth.ActionCreate, nil)
	if err != nil {
		return Event{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Event{}, fmt.Errorf("%w: event name is required", ErrInvalidInput)
	}
	if in.Start.IsZero() || in.End.IsZero() || in.End.Before(in.Start) {
		return Event{}, fmt.Errorf("%w: event start/end range is invalid", ErrInvalidInput)
	}
	if in.Attendees < 0 {
		return Event{}, fmt.Errorf("%w: attendees must not be negative", ErrInvalidInput)
	}
	contract, err := s.store.GetContract(ctx, in.ContractID)
	if err != nil {
		return Event{}, fmt.Errorf("event contract %d: %w", in.ContractID, err)
	}
	event, err := s.store.CreateEvent(ctx, Event{
		Name:       in.Name,
		ContractID: contract.ID,
		ClientID:   contract.ClientID,
		Start:      in.Start,
		End:        in.End,
		Location:   strings.TrimSpace(in.Location),
		Attendees:  in.Attendees,
		Notes:      in.Notes,
	})
	if err != nil {
		return Event{}, err
	}
	s.auditEvent(ctx, claims, "crm.event.create", auth.ResourceEvent, event.ID)
	return event, nil
}

func (s *Service) GetEvent(ctx context.Context, token string, id int64) (Event, error) {
	if _, err := s.authz.Authorize(ctx, token, auth.ResourceEvent, auth.ActionRead, nil); err != nil {
		return Event{}, err
	}
	return s.store.GetEvent(ctx, id)
}

func (s *Service) ListEvents(ctx context.Context, token string) ([]Event, error) {
	if _, err := s.authz.Authorize(ctx, token, auth.ResourceEvent, auth.ActionList, nil); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx)
}

// UpdateEvent is the full update reserved for the event's owning commercial.
// A support session holds the update permission only in assignee scope and
// only for notes, so anything beyond Notes is rejected here.
func (s *Service) UpdateEvent(ctx context.Context, token string, id int64, upd EventUpdate) (Event, error) {
	target := &auth.Target{Kind: auth.ResourceEvent, ID: id}
	claims, err := s.authz.Authorize(ctx, token, auth.ResourceEvent, auth.ActionUpdate, target)
	if err != nil {
		return Event{}, err
	}
	if claims.Department == auth.DepartmentSupport && touchesBeyondNotes(upd) {
		return Event{}, fmt.Errorf("%w: support may only update event notes", auth.ErrForbidden)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Event{}, fmt.Errorf("%w: event name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Attendees != nil && *upd.Attendees < 0 {
		return Event{}, fmt.Errorf("%w: attendees must not be negative", ErrInvalidInput)
	}
	event, err := s.store.UpdateEvent(ctx, id, upd)
	if err != nil {
		return Event{}, err
	}
	s.auditEvent(ctx, claims, "crm.event.update", auth.ResourceEvent, id)
	return event, nil
}

// UpdateEventNotes is the support-facing notes update, scoped to the
// assigned support identity by the permission matrix.
func (s *Service) UpdateEventNotes(ctx context.Context, token string, id int64, notes string) (Event, error) {
	return s.UpdateEvent(ctx, token, id, EventUpdate{Notes: &notes})
}

// AssignEventSupport links a support identity to an event. Management only.
func (s *Service) AssignEventSupport(ctx context.Context, token string, id, supportID int64) (Event, error) {
	target := &auth.Target{Kind: auth.ResourceEvent, ID: id}
	claims, err := s.authz.Authorize(ctx, token, auth.ResourceEvent, auth.ActionAssign, target)
	if err != nil {
		return Event{}, err
	}
	assignee, err := s.store.GetUser(ctx, supportID)
	if err != nil {
		return Event{}, fmt.Errorf("support contact %d: %w", supportID, err)
	}
	if assignee.Department != auth.DepartmentSupport {
		return Event{}, fmt.Errorf("%w: user %d is not in the support department", ErrInvalidInput, supportID)
	}
	event, err := s.store.AssignEventSupport(ctx, id, supportID)
	if err != nil {
		return Event{}, err
	}
	s.auditEvent(ctx, claims, "crm.event.assign", auth.ResourceEvent, id)
	return event, nil
}

func (s *Service) DeleteEvent(ctx context.Context, token string, id int64) error {
	target := &auth.Target{Kind: auth.ResourceEvent, ID: id}
	claims, err := s.authz.Authorize(ctx, token, auth.ResourceEvent, auth.ActionDelete, target)
	if err != nil {
		return err
	}
	if err := s.store.DeleteEvent(ctx, id); err != nil {
		return err
	}
	s.auditEvent(ctx, claims, "crm.event.delete", auth.ResourceEvent, id)
	return nil
}

func touchesBeyondNotes(upd EventUpdate) bool {
	return upd.Name != nil || upd.Start != nil || upd.End != nil ||
		upd.Location != nil || upd.Attendees != nil
}

func (s *Service) auditEvent(ctx context.Context, claims auth.SessionClaims, event string, kind auth.ResourceKind, id int64) {
	_ = audit.LogEvent(auth.ContextWithSession(ctx, claims), event, map[string]any{
		"resource": string(kind),
		"id":       id,
	})
}
