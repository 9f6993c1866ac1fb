package auth

import (
	"fmt"

	"github.com/KevinKickass/OpenMatrixCore/internal/config"
)

type Permission string

const (
	// PermOperator reads the matrix, switches crosspoints and recalls presets.
	PermOperator Permission = "operator"
	// PermTechnician may additionally run macros and move the USB host.
	PermTechnician Permission = "technician"
	// PermAdmin sends raw LW3 commands and retargets the connection.
	PermAdmin Permission = "admin"
)

var roles = map[string][]Permission{
	"operator":   {PermOperator},
	"technician": {PermOperator, PermTechnician},
	"admin":      {PermOperator, PermTechnician, PermAdmin},
}

type AuthService struct {
	jwtHandler *JWTHandler
}

func NewAuthService(cfg config.AuthConfig) *AuthService {
	return &AuthService{
		jwtHandler: NewJWTHandler(cfg.GetJWTSecret(), cfg.AccessTokenTTL),
	}
}

// IssueToken creates an access token for role. Tokens are handed out by
// the server binary, there is no login endpoint.
func (a *AuthService) IssueToken(subject, role string) (string, error) {
	token, err := a.jwtHandler.GenerateAccessToken(subject, role)
	if err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a bearer token and returns its permissions
func (a *AuthService) ValidateToken(token string) ([]Permission, *JWTClaims, error) {
	claims, err := a.jwtHandler.ValidateAccessToken(token)
	if err != nil {
		return nil, nil, err
	}
	return roleToPermissions(claims.Role), claims, nil
}

func roleToPermissions(role string) []Permission {
	if perms, ok := roles[role]; ok {
		return perms
	}
	return []Permission{PermOperator}
}

// HasPermission reports whether perms contains required.
func HasPermission(perms []Permission, required Permission) bool {
	for _, p := range perms {
		if p == required {
			return true
		}
	}
	return false
}
