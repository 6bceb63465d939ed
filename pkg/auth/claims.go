package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/hrcore-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	Subject string
	Role    enums.MemberRole
	JTI     string
}

// AccessTokenClaims is the typed JWT accepted by the ops API.
type AccessTokenClaims struct {
	Role enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}
