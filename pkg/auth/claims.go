package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID    uuid.UUID
	Email     string
	Role      enums.Role
	CompanyID *uuid.UUID
	BrokerID  *uuid.UUID
	JTI       string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID    uuid.UUID  `json:"user_id"`
	Email     string     `json:"email"`
	Role      enums.Role `json:"role"`
	CompanyID *uuid.UUID `json:"company_id,omitempty"`
	BrokerID  *uuid.UUID `json:"broker_id,omitempty"`
	jwt.RegisteredClaims
}
