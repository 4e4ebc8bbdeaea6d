package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	approvaldomain "github.com/stewardhq/steward/internal/approval/domain"
)

type processStepRequest struct {
	Action   string `json:"action"`
	Comments string `json:"comments"`
}

func (s *Server) GetFlow(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.approvalSvc.GetFlow(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ProcessStep(c *gin.Context) {
	account := currentAccount(c)
	id := strings.TrimSpace(c.Param("id"))

	order, err := strconv.Atoi(strings.TrimSpace(c.Param("order")))
	if err != nil || order < 1 {
		AbortWithError(c, newValidationError("order", "invalid_step_order", "invalid step order"))
		return
	}

	var req processStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.approvalSvc.ProcessStep(c.Request.Context(), id, order, approvaldomain.ProcessRequest{
		Action:         strings.ToUpper(strings.TrimSpace(req.Action)),
		Comments:       strings.TrimSpace(req.Comments),
		ActorAccountID: account.ID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
