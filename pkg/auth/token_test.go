package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/taxcredit-backend/pkg/config"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
)

var testCfg = config.JWTConfig{Secret: "secret", Issuer: "taxcredit", ExpirationMinutes: 30}

func TestMintAndParseAccessToken(t *testing.T) {
	now := time.Now().UTC()
	userID, companyID := uuid.New(), uuid.New()

	token, err := MintAccessToken(testCfg, now, AccessTokenPayload{
		UserID:    userID,
		Email:     "cfo@acme.test",
		Role:      enums.RoleCompany,
		CompanyID: &companyID,
		JTI:       "session-1",
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(testCfg, token)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, userID.String(), claims.Subject)
	require.Equal(t, companyID, *claims.CompanyID)
	require.Equal(t, enums.RoleCompany, claims.Role)
	require.Equal(t, "session-1", claims.ID)
	require.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestMintAssignsJTI(t *testing.T) {
	token, err := MintAccessToken(testCfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleBroker})
	require.NoError(t, err)
	claims, err := ParseAccessToken(testCfg, token)
	require.NoError(t, err)
	_, err = uuid.Parse(claims.ID)
	require.NoError(t, err)
}

func TestMintAccessTokenValidation(t *testing.T) {
	now := time.Now()

	_, err := MintAccessToken(testCfg, now, AccessTokenPayload{UserID: uuid.New(), Role: "SUPERUSER"})
	require.ErrorContains(t, err, "invalid role")

	_, err = MintAccessToken(testCfg, now, AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleCompany})
	require.ErrorIs(t, err, errCompanyIDRequired)

	_, err = MintAccessToken(config.JWTConfig{Issuer: "x", ExpirationMinutes: 1}, now, AccessTokenPayload{Role: enums.RoleAdmin})
	require.ErrorIs(t, err, errSecretRequired)

	_, err = MintAccessToken(config.JWTConfig{Secret: "s", Issuer: "x"}, now, AccessTokenPayload{Role: enums.RoleAdmin})
	require.ErrorIs(t, err, errTTLRequired)
}

func TestParseAccessTokenRejectsTampering(t *testing.T) {
	token, err := MintAccessToken(testCfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleAdmin})
	require.NoError(t, err)

	other := testCfg
	other.Secret = "different"
	_, err = ParseAccessToken(other, token)
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	wrongIssuer := testCfg
	wrongIssuer.Issuer = "someone-else"
	_, err = ParseAccessToken(wrongIssuer, token)
	require.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	_, err = ParseAccessToken(testCfg, token[:len(token)-2])
	require.Error(t, err)
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	cfg := testCfg
	cfg.ExpirationMinutes = 1
	token, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleAdmin})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseAccessTokenRejectsForeignAlgorithm(t *testing.T) {
	claims := &AccessTokenClaims{
		UserID: uuid.New(),
		Role:   enums.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testCfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testCfg.Secret))
	require.NoError(t, err)

	_, err = ParseAccessToken(testCfg, token)
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}
