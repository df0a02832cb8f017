package auth

import "context"

// Identity is the auth-facing view of a CRM user.
type Identity struct {
	ID           int64
	FullName     string
	Email        string
	PasswordHash string
	Department   Department
}

// IdentityStore is the persistence capability the credential verifier
// consumes. Lookups are exact matches on the stored email.
type IdentityStore interface {
	IdentityByEmail(ctx context.Context, email string) (Identity, error)
}

// Ownership is the resolved ownership of a single resource. OwnerID is the
// owning commercial, resolved directly for clients and transitively via
// contract->client for contracts and events. AssigneeID is the support
// identity assigned to an event, zero when unassigned or not applicable.
type Ownership struct {
	Kind       ResourceKind
	ID         int64
	OwnerID    int64
	AssigneeID int64
}

// OwnershipResolver looks up who owns a resource. Implemented by the CRM
// persistence layer; the decision engine only compares identities.
type OwnershipResolver interface {
	ResolveOwnership(ctx context.Context, kind ResourceKind, id int64) (Ownership, error)
}
