package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OperatorTokenPayload is what the auth service puts into an operator token.
type OperatorTokenPayload struct {
	OperatorID uuid.UUID
	Email      string
	Role       enums.MemberRole
	JTI        string
}

// OperatorClaims is the typed JWT presented to the admin API.
type OperatorClaims struct {
	OperatorID uuid.UUID        `json:"operator_id"`
	Email      string           `json:"email,omitempty"`
	Role       enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}

// Actor is the identity recorded on history rows.
func (c *OperatorClaims) Actor() string {
	if c.Email != "" {
		return c.Email
	}
	return "operator:" + c.OperatorID.String()
}
