package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ZanzyTHEbar/team-pulse/internal/auth"
	"github.com/ZanzyTHEbar/team-pulse/internal/errors"
	"github.com/ZanzyTHEbar/team-pulse/internal/metrics"
	"github.com/ZanzyTHEbar/team-pulse/internal/monitoring"
	"github.com/ZanzyTHEbar/team-pulse/internal/ratelimit"
	"github.com/ZanzyTHEbar/team-pulse/internal/security"
	"github.com/ZanzyTHEbar/team-pulse/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Store is everything the HTTP layer reads and writes.
// Both the SQLite repository and the GORM store satisfy it.
type Store interface {
	metrics.Store
	auth.AdminStore

	ListMembers(ctx context.Context, q types.MemberQuery) ([]types.Member, int, error)
	CreateMember(ctx context.Context, m *types.Member) (*types.Member, error)
	UpdateMember(ctx context.Context, code string, m *types.Member) (*types.Member, error)
	DeactivateMember(ctx context.Context, code string) (*types.Member, error)
	BulkUpsertMembers(ctx context.Context, members []types.Member) ([]types.Member, error)

	CountAssessments(ctx context.Context, respondentCode string) (int, error)
	CreateAssessment(ctx context.Context, a *types.Assessment) (*types.Assessment, error)
	UpdateAssessment(ctx context.Context, a *types.Assessment) (*types.Assessment, error)
	DeleteAssessment(ctx context.Context, id int64) error
	ListMetricsByAssessment(ctx context.Context, assessmentID int64) ([]types.Metric, error)

	HealthCheck(ctx context.Context) error
	Stats() map[string]interface{}
}

// Deps wires a Handler. Store and Auth are required.
type Deps struct {
	Store            Store
	Auth             *auth.Service
	Metrics          *metrics.Service
	Security         *security.SecurityMiddleware
	Limiter          *ratelimit.RateLimiter
	Monitor          *monitoring.Metrics
	Logger           *monitoring.Logger
	LoginLimitPerMin int
	Version          string
}

// Handler serves the REST API
type Handler struct {
	store    Store
	auth     *auth.Service
	metrics  *metrics.Service
	security *security.SecurityMiddleware
	limiter  *ratelimit.RateLimiter
	monitor  *monitoring.Metrics
	logger   *monitoring.Logger

	loginLimit int
	version    string
}

func NewHandler(d Deps) (*Handler, error) {
	if d.Store == nil || d.Auth == nil {
		return nil, fmt.Errorf("api: store and auth service are required")
	}
	if err := RegisterValidators(); err != nil {
		return nil, err
	}

	h := &Handler{
		store:      d.Store,
		auth:       d.Auth,
		metrics:    d.Metrics,
		security:   d.Security,
		limiter:    d.Limiter,
		monitor:    d.Monitor,
		logger:     d.Logger,
		loginLimit: d.LoginLimitPerMin,
		version:    d.Version,
	}
	if h.metrics == nil {
		h.metrics = metrics.NewService(d.Store)
	}
	if h.security == nil {
		h.security = security.NewSecurityMiddleware(security.DefaultSecurityConfig())
	}
	if h.monitor == nil {
		h.monitor = monitoring.NewMetrics()
	}
	if h.logger == nil {
		h.logger = &monitoring.Logger{Logger: slog.Default()}
	}
	if h.loginLimit <= 0 {
		h.loginLimit = ratelimit.DefaultConfig().LoginLimitPerMin
	}
	if h.version == "" {
		h.version = "1.0.0"
	}
	return h, nil
}

// Register mounts every route on r
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.health)

	admin := h.auth.RequireAdmin()
	apiGroup := r.Group("/api")

	authGroup := apiGroup.Group("/auth")
	{
		authGroup.POST("/admin/login", h.loginLimiter(), h.adminLogin)
		authGroup.POST("/viewer/auth", h.loginLimiter(), h.viewerAuth)
		authGroup.GET("/me", admin, h.me)
	}

	members := apiGroup.Group("/members")
	{
		members.GET("", h.listMembers)
		members.GET("/:code", h.getMember)
		members.POST("", admin, h.createMember)
		members.POST("/bulk-import", admin, h.bulkImportMembers)
		members.PUT("/:code", admin, h.updateMember)
		members.DELETE("/:code", admin, h.deactivateMember)
	}

	assessments := apiGroup.Group("/assessments")
	{
		assessments.GET("", h.listAssessments)
		assessments.GET("/:id", h.getAssessment)
		assessments.POST("", admin, h.createAssessment)
		assessments.PUT("/:id", admin, h.updateAssessment)
		assessments.DELETE("/:id", admin, h.deleteAssessment)
	}

	metricsGroup := apiGroup.Group("/metrics")
	{
		metricsGroup.GET("/team", h.teamMetrics)
		metricsGroup.GET("/member/:code", h.memberMetrics)
		metricsGroup.POST("/assessment/:id/calculate", admin, h.calculateMetrics)
	}
}

func (h *Handler) loginLimiter() gin.HandlerFunc {
	if h.limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return h.limiter.EndpointRateLimitMiddleware("login", h.loginLimit)
}

// bindError keeps validator errors as they are so the response lists every field
func bindError(err error) error {
	var ve validator.ValidationErrors
	if stderrors.As(err, &ve) {
		return err
	}
	return errors.NewValidationError("Malformed request", err.Error())
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		errors.Respond(c, errors.NewValidationError("Invalid id", c.Param("id")))
		return 0, false
	}
	return id, true
}

func (h *Handler) invalidate(c *gin.Context) {
	h.metrics.InvalidateViews(c.Request.Context())
}
