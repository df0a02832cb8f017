package crm

import (
	"errors"
	"time"

	"epicrm.org/internal/auth"
)

var (
	ErrNotFound     = errors.New("crm: not found")
	ErrConflict     = errors.New("crm: already exists")
	ErrInvalidInput = errors.New("crm: invalid input")
)

// User is a CRM collaborator account. Department membership is the only
// source of permissions.
type User struct {
	ID           int64           `json:"id"`
	FullName     string          `json:"full_name"`
	Email        string          `json:"email"`
	PasswordHash string          `json:"-"`
	Department   auth.Department `json:"department"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Client is a customer record. SalesContactID is the owning commercial and
// the scoping key for "own client" permission rules.
type Client struct {
	ID             int64     `json:"id"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Enterprise     string    `json:"enterprise"`
	SalesContactID int64     `json:"sales_contact_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Contract belongs to a client; its sales contact is always the client's
// owning commercial.
type Contract struct {
	ID              int64     `json:"id"`
	ClientID        int64     `json:"client_id"`
	Amount          float64   `json:"amount"`
	RemainingAmount float64   `json:"remaining_amount"`
	Signed          bool      `json:"signed"`
	SalesContactID  int64     `json:"sales_contact_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Event is scheduled under a contract. SupportContactID is zero until
// management assigns a support identity.
type Event struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	ContractID       int64     `json:"contract_id"`
	ClientID         int64     `json:"client_id"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Location         string    `json:"location"`
	Attendees        int       `json:"attendees"`
	Notes            string    `json:"notes"`
	SupportContactID int64     `json:"support_contact_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Update payloads use pointer fields: nil means "leave unchanged".

type UserUpdate struct {
	FullName   *string
	Email      *string
	Password   *string
	Department *auth.Department
}

type ClientUpdate struct {
	FullName   *string
	Email      *string
	Phone      *string
	Enterprise *string
}

type ContractUpdate struct {
	Amount          *float64
	RemainingAmount *float64
	Signed          *bool
}

type EventUpdate struct {
	Name      *string
	Start     *time.Time
	End       *time.Time
	Location  *string
	Attendees *int
	Notes     *string
}
