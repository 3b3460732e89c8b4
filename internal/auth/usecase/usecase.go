package usecase

import (
	"errors"

	authdomain "crmboard/internal/auth/domain"
	authdto "crmboard/internal/auth/dto"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid token")
	ErrRefreshExpired     = errors.New("refresh token expired")
	ErrUserNotFound       = errors.New("user not found")
	ErrForbidden          = errors.New("admin role required")
)

// AuthUsecase defines the authentication and team management operations
type AuthUsecase interface {
	Register(req *authdto.RegisterRequest) (*authdto.TokenResponse, error)
	Login(req *authdto.LoginRequest) (*authdto.TokenResponse, error)
	RefreshToken(refreshToken string) (*authdto.TokenResponse, error)
	Logout(refreshToken string) error
	ValidateToken(token string) (*authdomain.User, error)

	AddMember(admin *authdomain.User, req *authdto.AddMemberRequest) (*authdomain.User, error)
	ListMembers(tenantID string) ([]authdomain.User, error)
}
