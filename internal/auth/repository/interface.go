package repository

import authdomain "crmboard/internal/auth/domain"

// UserRepository persists tenants, users and refresh tokens.
// Finders return (nil, nil) when nothing matches.
type UserRepository interface {
	CreateTenant(tenant *authdomain.Tenant, admin *authdomain.User) error
	FindTenant(id string) (*authdomain.Tenant, error)

	Create(user *authdomain.User) error
	FindByEmail(email string) (*authdomain.User, error)
	FindByID(id string) (*authdomain.User, error)
	ListByTenant(tenantID string) ([]authdomain.User, error)
	Update(user *authdomain.User) error

	SaveRefreshToken(token *authdomain.RefreshToken) error
	FindRefreshToken(token string) (*authdomain.RefreshToken, error)
	DeleteRefreshToken(token string) error
	DeleteRefreshTokensByUser(userID string) error
}
