package service

import (
	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/deppfellow/erp-crud/internal/server"
)

// AuthService configures the Clerk SDK. Auth is off when no secret key
// is configured.
type AuthService struct {
	server  *server.Server
	enabled bool
}

func NewAuthService(s *server.Server) *AuthService {
	key := s.Config.Auth.SecretKey
	if key != "" {
		clerk.SetKey(key)
	}
	return &AuthService{
		server:  s,
		enabled: key != "",
	}
}

// Enabled reports whether routes should require a Clerk session.
func (a *AuthService) Enabled() bool {
	return a.enabled
}
