package auth

import (
	"context"
	"errors"
	"time"
)

// Service composes the credential verifier, the session issuer and the access
// decision engine. It holds no mutable state after construction; concurrent
// use requires no coordination.
type Service struct {
	identities IdentityStore
	ownership  OwnershipResolver
	tokens     *TokenIssuer
}

// NewService constructs the authorization service.
func NewService(identities IdentityStore, ownership OwnershipResolver, tokens *TokenIssuer) (*Service, error) {
	if identities == nil {
		return nil, errors.New("auth: identity store is required")
	}
	if ownership == nil {
		return nil, errors.New("auth: ownership resolver is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token issuer is required")
	}
	return &Service{identities: identities, ownership: ownership, tokens: tokens}, nil
}

// Tokens exposes the session issuer for collaborators that only validate.
func (s *Service) Tokens() *TokenIssuer { return s.tokens }

// Authenticate verifies credentials and issues a session token. Unknown email
// and wrong password both come back as ErrInvalidCredentials; nothing in the
// result distinguishes the two cases.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, time.Time, Identity, error) {
	if email == "" || password == "" {
		return "", time.Time{}, Identity{}, ErrInvalidCredentials
	}
	identity, err := s.identities.IdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, Identity{}, ErrInvalidCredentials
		}
		return "", time.Time{}, Identity{}, err
	}
	if err := VerifyPassword(identity.PasswordHash, password); err != nil {
		return "", time.Time{}, Identity{}, ErrInvalidCredentials
	}
	token, expiresAt, err := s.tokens.Issue(identity)
	if err != nil {
		return "", time.Time{}, Identity{}, err
	}
	identity.PasswordHash = ""
	return token, expiresAt, identity, nil
}
