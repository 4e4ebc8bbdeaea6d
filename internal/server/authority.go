package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stewardhq/steward/internal/authority"
)

// ResolveAuthority classifies a role title. The mapping is pure and public;
// clients use it to preview what provisioning a role would grant.
func (s *Server) ResolveAuthority(c *gin.Context) {
	role := strings.TrimSpace(c.Query("role"))
	if role == "" {
		AbortWithError(c, newValidationError("role", "invalid_role", "role is required"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": authority.Resolve(role)})
}
