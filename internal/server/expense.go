package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	expensedomain "github.com/stewardhq/steward/internal/expense/domain"
)

type createExpenseReportRequest struct {
	UnitID      string `json:"unit_id"`
	Amount      int64  `json:"amount"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) CreateExpenseReport(c *gin.Context) {
	account := currentAccount(c)

	var req createExpenseReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	unitID, err := parseID(req.UnitID)
	if err != nil {
		AbortWithError(c, newValidationError("unit_id", "invalid_unit", "invalid unit id"))
		return
	}

	resp, err := s.expenseSvc.Create(c.Request.Context(), expensedomain.CreateRequest{
		RequesterAccountID: account.ID,
		UnitID:             unitID,
		Amount:             req.Amount,
		Category:           strings.TrimSpace(req.Category),
		Title:              strings.TrimSpace(req.Title),
		Description:        strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListMyExpenseReports(c *gin.Context) {
	account := currentAccount(c)

	resp, err := s.expenseSvc.ListByRequester(c.Request.Context(), account.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetExpenseReport(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.expenseSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelExpenseReport(c *gin.Context) {
	account := currentAccount(c)
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.expenseSvc.Cancel(c.Request.Context(), id, account.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SubmitExpenseReport(c *gin.Context) {
	account := currentAccount(c)
	id := strings.TrimSpace(c.Param("id"))

	report, err := s.expenseSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if report.RequesterAccountID != account.ID {
		AbortWithError(c, expensedomain.ErrNotRequester)
		return
	}

	resp, err := s.approvalSvc.Submit(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetFlowByReport(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	resp, err := s.approvalSvc.GetFlowByReport(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
