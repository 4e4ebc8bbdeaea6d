package server

import (
	"context"
	"net/http"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stewardhq/steward/internal/account"
	accountdomain "github.com/stewardhq/steward/internal/account/domain"
	"github.com/stewardhq/steward/internal/approval"
	approvaldomain "github.com/stewardhq/steward/internal/approval/domain"
	"github.com/stewardhq/steward/internal/audit"
	auditdomain "github.com/stewardhq/steward/internal/audit/domain"
	"github.com/stewardhq/steward/internal/authorization"
	"github.com/stewardhq/steward/internal/config"
	"github.com/stewardhq/steward/internal/expense"
	expensedomain "github.com/stewardhq/steward/internal/expense/domain"
	"github.com/stewardhq/steward/internal/membership"
	membershipdomain "github.com/stewardhq/steward/internal/membership/domain"
	"github.com/stewardhq/steward/internal/notification"
	"github.com/stewardhq/steward/internal/observability"
	obsmiddleware "github.com/stewardhq/steward/internal/observability/logger"
	obsmetrics "github.com/stewardhq/steward/internal/observability/metrics"
	obstracing "github.com/stewardhq/steward/internal/observability/tracing"
	"github.com/stewardhq/steward/internal/organization"
	orgdomain "github.com/stewardhq/steward/internal/organization/domain"
	"github.com/stewardhq/steward/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	authorization.Module,
	audit.Module,
	notification.Module,
	organization.Module,
	account.Module,
	membership.Module,
	expense.Module,
	approval.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, _ *Server) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	enforcer    *casbin.SyncedEnforcer
	accountRepo accountdomain.Repository
	accountSvc  accountdomain.Service
	orgSvc      orgdomain.Service
	memberSvc   membershipdomain.Service
	expenseSvc  expensedomain.Service
	approvalSvc approvaldomain.Service
	auditSvc    auditdomain.Service
	limiters    ratelimit.Limiters
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Enforcer    *casbin.SyncedEnforcer
	AccountRepo accountdomain.Repository
	AccountSvc  accountdomain.Service
	OrgSvc      orgdomain.Service
	MemberSvc   membershipdomain.Service
	ExpenseSvc  expensedomain.Service
	ApprovalSvc approvaldomain.Service
	AuditSvc    auditdomain.Service
	Limiters    ratelimit.Limiters
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		enforcer:    p.Enforcer,
		accountRepo: p.AccountRepo,
		accountSvc:  p.AccountSvc,
		orgSvc:      p.OrgSvc,
		memberSvc:   p.MemberSvc,
		expenseSvc:  p.ExpenseSvc,
		approvalSvc: p.ApprovalSvc,
		auditSvc:    p.AuditSvc,
		limiters:    p.Limiters,
	}

	s.registerRoutes()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	v1.GET("/authority/resolve", s.ResolveAuthority)

	v1.Use(s.AuthRequired())

	// -------- Organization --------
	// Reads are open to any authenticated account; the tree and the role
	// catalog are reference data for request forms.
	v1.GET("/units", s.ListUnits)
	v1.GET("/units/:id/roles", s.GetEffectiveRoles)
	v1.GET("/roles", s.ListRoles)

	v1.POST("/units", s.Require(authorization.ObjOrganization, authorization.ActManage), s.CreateUnit)
	v1.POST("/units/:id/move", s.Require(authorization.ObjOrganization, authorization.ActManage), s.MoveUnit)
	v1.PUT("/units/:id/roles", s.Require(authorization.ObjOrganization, authorization.ActManage), s.AssignRoles)
	v1.DELETE("/units/:id/roles/:roleId", s.Require(authorization.ObjOrganization, authorization.ActManage), s.UnassignRole)


	v1.POST("/roles", s.Require(authorization.ObjOrganization, authorization.ActManage), s.CreateRole)
	v1.PATCH("/roles/:id", s.Require(authorization.ObjOrganization, authorization.ActManage), s.UpdateRole)

	// -------- Membership --------
	v1.POST("/members", s.Require(authorization.ObjMembership, authorization.ActManage), s.RegisterMember)
	v1.GET("/people/:id", s.Require(authorization.ObjMembership, authorization.ActManage), s.GetPerson)
	v1.GET("/people/:id/memberships", s.Require(authorization.ObjMembership, authorization.ActManage), s.ListMemberships)
	v1.GET("/people/:id/history", s.Require(authorization.ObjMembership, authorization.ActManage), s.ListMembershipHistory)
	v1.POST("/people/:id/memberships", s.Require(authorization.ObjMembership, authorization.ActManage), s.AddMembership)
	v1.PATCH("/memberships/:id", s.Require(authorization.ObjMembership, authorization.ActManage), s.ChangeMembership)
	v1.POST("/memberships/:id/end", s.Require(authorization.ObjMembership, authorization.ActManage), s.EndMembership)

	// -------- Accounts --------
	v1.GET("/accounts", s.Require(authorization.ObjMembership, authorization.ActManage), s.ListAccounts)
	v1.GET("/accounts/:id", s.Require(authorization.ObjMembership, authorization.ActManage), s.GetAccount)

	// -------- Expense Reports --------
	v1.POST("/expense-reports", s.Require(authorization.ObjExpense, authorization.ActCreate), s.CreateExpenseReport)
	v1.GET("/expense-reports", s.Require(authorization.ObjExpense, authorization.ActView), s.ListMyExpenseReports)
	v1.GET("/expense-reports/:id", s.Require(authorization.ObjExpense, authorization.ActView), s.GetExpenseReport)
	v1.POST("/expense-reports/:id/cancel", s.Require(authorization.ObjExpense, authorization.ActCreate), s.CancelExpenseReport)
	v1.POST("/expense-reports/:id/submit", s.Require(authorization.ObjExpense, authorization.ActCreate), s.RateLimited(s.limiters.Submit), s.SubmitExpenseReport)
	v1.GET("/expense-reports/:id/flow", s.Require(authorization.ObjApproval, authorization.ActView), s.GetFlowByReport)

	// -------- Approval Flows --------
	v1.GET("/approval-flows/:id", s.Require(authorization.ObjApproval, authorization.ActView), s.GetFlow)
	v1.POST("/approval-flows/:id/steps/:order", s.Require(authorization.ObjApproval, authorization.ActAct), s.RateLimited(s.limiters.ApprovalAction), s.ProcessStep)

	// -------- Audit --------
	v1.GET("/audit-logs", s.Require(authorization.ObjAuditLog, authorization.ActView), s.ListAuditLogs)
}
