package domain

import (
	"github.com/google/uuid"

	"github.com/punchamoorthee/bankcore/internal/money"
)

// Stock is an instrument priced outside the ledger.
type Stock struct {
	ID        uuid.UUID   `json:"id"`
	Symbol    string      `json:"symbol"`
	Name      string      `json:"name"`
	Price     money.Money `json:"price"`
	Tradeable bool        `json:"tradeable"`
}

type Role string

const (
	RoleClient  Role = "client"
	RoleAdvisor Role = "advisor"
	RoleAdmin   Role = "admin"
)

// User is the read-only view of a customer or staff member.
type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     Role      `json:"role"`
}

func (u User) CanGrantCredit() bool {
	return u.Role == RoleAdvisor || u.Role == RoleAdmin
}
