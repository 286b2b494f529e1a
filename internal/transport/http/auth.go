package httptransport

import (
	"net/http"
	"strings"

	"storefront-checkout/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

// Authenticator resolves the caller. A request without credentials yields the
// anonymous actor; malformed credentials are an error.
type Authenticator interface {
	Authenticate(r *http.Request) (domain.Actor, error)
}

// HeaderAuthenticator trusts identity headers set by the upstream auth gateway.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(r *http.Request) (domain.Actor, error) {
	raw := strings.TrimSpace(r.Header.Get(headerUserID))
	if raw == "" {
		return domain.Actor{}, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return domain.Actor{}, domain.ErrUnauthenticated
	}
	role := domain.RoleCustomer
	if strings.EqualFold(r.Header.Get(headerUserRole), string(domain.RoleStaff)) {
		role = domain.RoleStaff
	}
	return domain.Actor{UserID: &id, Role: role}, nil
}

func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := s.Auth.Authenticate(c.Request)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}
