package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/taxcredit-backend/pkg/config"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
)

var (
	signingMethod = jwt.SigningMethodHS256

	// clockSkew tolerates small drift between API replicas.
	clockSkew = 30 * time.Second
)

var (
	errSecretRequired    = errors.New("jwt secret is required")
	errIssuerRequired    = errors.New("jwt issuer is required")
	errTTLRequired       = errors.New("jwt expiration minutes must be positive")
	errCompanyIDRequired = errors.New("company users require a company id")
)

func checkConfig(cfg config.JWTConfig, minting bool) error {
	switch {
	case cfg.Secret == "":
		return errSecretRequired
	case minting && cfg.Issuer == "":
		return errIssuerRequired
	case minting && cfg.AccessTTL() <= 0:
		return errTTLRequired
	}
	return nil
}

// Validate runs after jwt-go's registered-claim checks, on both mint and
// parse, so a token can never carry a role the gate does not understand.
func (c *AccessTokenClaims) Validate() error {
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid role %q", c.Role)
	}
	if c.Role == enums.RoleCompany && c.CompanyID == nil {
		return errCompanyIDRequired
	}
	if c.UserID == uuid.Nil {
		return errors.New("token has no user id")
	}
	return nil
}

// MintAccessToken signs an HS256 token valid from now for cfg.AccessTTL. An
// empty JTI gets a random one; the session store keys revocation on it.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if err := checkConfig(cfg, true); err != nil {
		return "", err
	}
	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := &AccessTokenClaims{
		UserID:    payload.UserID,
		Email:     payload.Email,
		Role:      payload.Role,
		CompanyID: payload.CompanyID,
		BrokerID:  payload.BrokerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.AccessTTL())),
		},
	}
	if err := claims.Validate(); err != nil {
		return "", err
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry, then the claim
// invariants in Validate. jwt.ErrTokenExpired stays matchable via errors.Is.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if err := checkConfig(cfg, false); err != nil {
		return nil, err
	}
	claims := &AccessTokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}
