package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	membershipdomain "github.com/stewardhq/steward/internal/membership/domain"
)

type registerMemberRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	UnitID    string `json:"unit_id"`
	RoleID    string `json:"role_id"`
	IsPrimary bool   `json:"is_primary"`
}

type addMembershipRequest struct {
	UnitID    string `json:"unit_id"`
	RoleID    string `json:"role_id"`
	IsPrimary bool   `json:"is_primary"`
}

type changeMembershipRequest struct {
	UnitID    *string `json:"unit_id,omitempty"`
	RoleID    *string `json:"role_id,omitempty"`
	IsPrimary *bool   `json:"is_primary,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

type endMembershipRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) RegisterMember(c *gin.Context) {
	var req registerMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.memberSvc.RegisterMember(c.Request.Context(), membershipdomain.RegisterMemberRequest{
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		UnitID:    strings.TrimSpace(req.UnitID),
		RoleID:    strings.TrimSpace(req.RoleID),
		IsPrimary: req.IsPrimary,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPerson(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.memberSvc.GetPerson(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListMemberships(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.memberSvc.ListMemberships(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListMembershipHistory(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.memberSvc.ListHistory(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AddMembership(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req addMembershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.memberSvc.AddMembership(c.Request.Context(), id, membershipdomain.AddMembershipRequest{
		UnitID:    strings.TrimSpace(req.UnitID),
		RoleID:    strings.TrimSpace(req.RoleID),
		IsPrimary: req.IsPrimary,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ChangeMembership(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req changeMembershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.memberSvc.ChangeMembership(c.Request.Context(), id, membershipdomain.ChangeMembershipRequest{
		UnitID:    trimStringPtr(req.UnitID),
		RoleID:    trimStringPtr(req.RoleID),
		IsPrimary: req.IsPrimary,
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) EndMembership(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	// The reason body is optional.
	var req endMembershipRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	if err := s.memberSvc.DeactivateMembership(c.Request.Context(), id, strings.TrimSpace(req.Reason)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"membership_id": id}})
}

func trimStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
