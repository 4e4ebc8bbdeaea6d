package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/stewardhq/steward/internal/account/domain"
	"github.com/stewardhq/steward/internal/auditcontext"
	auditdomain "github.com/stewardhq/steward/internal/audit/domain"
	"github.com/stewardhq/steward/internal/authorization"
	"github.com/stewardhq/steward/internal/ratelimit"
)

const contextAccountKey = "actor_account"

// AuthRequired resolves the acting account from the X-Actor-Email header.
// Authentication proper (sessions, tokens) sits in front of this service;
// the header carries the already-authenticated identity.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		email := strings.ToLower(strings.TrimSpace(c.GetHeader("X-Actor-Email")))
		if email == "" {
			AbortWithError(c, authorization.ErrUnauthenticated)
			return
		}

		account, err := s.accountRepo.GetByEmail(c.Request.Context(), email)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if account == nil {
			AbortWithError(c, authorization.ErrUnauthenticated)
			return
		}
		if account.Status != accountdomain.StatusActive {
			AbortWithError(c, accountdomain.ErrAccountDisabled)
			return
		}

		ctx := auditcontext.WithActor(c.Request.Context(), auditcontext.Actor{
			Type: auditdomain.ActorAccount,
			ID:   account.ID.String(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextAccountKey, account)
		c.Next()
	}
}

// Require gates the route on the actor's system role.
func (s *Server) Require(obj, act string) gin.HandlerFunc {
	return func(c *gin.Context) {
		account := currentAccount(c)
		if account == nil {
			AbortWithError(c, authorization.ErrUnauthenticated)
			return
		}

		ok, err := authorization.Allowed(s.enforcer, account.SystemRole, obj, act)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !ok {
			AbortWithError(c, authorization.ErrForbidden)
			return
		}
		c.Next()
	}
}

// RateLimited applies a limiter keyed by the acting account, falling back
// to the client IP for unauthenticated calls.
func (s *Server) RateLimited(limiter ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if account := currentAccount(c); account != nil {
			key = account.ID.String()
		}

		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !allowed {
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

func currentAccount(c *gin.Context) *accountdomain.UserAccount {
	value, ok := c.Get(contextAccountKey)
	if !ok {
		return nil
	}
	account, ok := value.(*accountdomain.UserAccount)
	if !ok {
		return nil
	}
	return account
}
