package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	orgdomain "github.com/stewardhq/steward/internal/organization/domain"
)

type createUnitRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id"`
	Tier     string `json:"tier"`
}

type moveUnitRequest struct {
	NewParentID string `json:"new_parent_id"`
}

type assignRolesRequest struct {
	RoleIDs                []string `json:"role_ids"`
	ReplaceExisting        bool     `json:"replace_existing"`
	PropagateToDescendants bool     `json:"propagate_to_descendants"`
}

type createRoleRequest struct {
	Name         string `json:"name"`
	Level        int    `json:"level"`
	IsLeadership bool   `json:"is_leadership"`
}

type updateRoleRequest struct {
	Level        *int  `json:"level,omitempty"`
	IsLeadership *bool `json:"is_leadership,omitempty"`
	IsActive     *bool `json:"is_active,omitempty"`
}

func (s *Server) CreateUnit(c *gin.Context) {
	var req createUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.orgSvc.CreateUnit(c.Request.Context(), orgdomain.CreateUnitRequest{
		Name:     strings.TrimSpace(req.Name),
		ParentID: strings.TrimSpace(req.ParentID),
		Tier:     strings.TrimSpace(req.Tier),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListUnits(c *gin.Context) {
	resp, err := s.orgSvc.ListUnits(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) MoveUnit(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req moveUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.orgSvc.MoveUnit(c.Request.Context(), id, strings.TrimSpace(req.NewParentID)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"unit_id": id}})
}

func (s *Server) GetEffectiveRoles(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.orgSvc.GetEffectiveRoles(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AssignRoles(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req assignRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err := s.orgSvc.AssignRoles(c.Request.Context(), id, req.RoleIDs, orgdomain.AssignOptions{
		ReplaceExisting:        req.ReplaceExisting,
		PropagateToDescendants: req.PropagateToDescendants,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"unit_id": id}})
}

func (s *Server) UnassignRole(c *gin.Context) {
	unitID := strings.TrimSpace(c.Param("id"))
	roleID := strings.TrimSpace(c.Param("roleId"))

	if err := s.orgSvc.UnassignRole(c.Request.Context(), unitID, roleID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"unit_id": unitID, "role_id": roleID}})
}

func (s *Server) ListRoles(c *gin.Context) {
	resp, err := s.orgSvc.ListRoles(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateRole(c *gin.Context) {
	var req createRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.orgSvc.CreateRole(c.Request.Context(), orgdomain.CreateRoleRequest{
		Name:         strings.TrimSpace(req.Name),
		Level:        req.Level,
		IsLeadership: req.IsLeadership,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateRole(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.orgSvc.UpdateRole(c.Request.Context(), id, orgdomain.UpdateRoleRequest{
		Level:        req.Level,
		IsLeadership: req.IsLeadership,
		IsActive:     req.IsActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil {
		return 0, invalidRequestError()
	}
	return id, nil
}
