package institutions

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/edulist/backend/internal/middleware"
	"github.com/edulist/backend/internal/models"
	"github.com/edulist/backend/pkg/response"
)

// Store is the persistence used by the institution endpoints.
type Store interface {
	Create(ctx context.Context, inst *models.Institution) error
	GetByOwner(ctx context.Context, userID uuid.UUID) (*models.Institution, error)
	ListCourses(ctx context.Context, institutionID uuid.UUID) ([]models.Course, error)
	CreateCourse(ctx context.Context, c *models.Course) error
}

// Handler handles institution HTTP endpoints.
type Handler struct {
	repo   Store
	logger *zap.Logger
}

// NewHandler creates an institutions handler.
func NewHandler(repo Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// CreateInstitutionRequest is the body for POST /institutions.
type CreateInstitutionRequest struct {
	Name  string `json:"name" binding:"required,max=255"`
	Email string `json:"email" binding:"omitempty,email"`
}

// CreateCourseRequest is the body for POST /institutions/me/courses.
type CreateCourseRequest struct {
	Name          string `json:"name" binding:"required,max=255"`
	PriceOfCourse string `json:"price_of_course"`
}

// Create handles POST /institutions. The caller becomes the owner; one institution per user.
func (h *Handler) Create(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var req CreateInstitutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	inst := &models.Institution{OwnerID: userID, Name: strings.TrimSpace(req.Name), Email: req.Email}
	if inst.Name == "" {
		response.BadRequest(c, "name required")
		return
	}
	if err := h.repo.Create(c.Request.Context(), inst); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			response.Conflict(c, "you already own an institution")
			return
		}
		h.logger.Error("create institution failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to create institution")
		return
	}
	response.Created(c, inst)
}

// Me handles GET /institutions/me. Returns the caller's institution with its courses.
func (h *Handler) Me(c *gin.Context) {
	inst, ok := h.resolve(c)
	if !ok {
		return
	}
	courses, err := h.repo.ListCourses(c.Request.Context(), inst.ID)
	if err != nil {
		h.logger.Error("list courses failed", zap.Error(err), zap.String("institution_id", inst.ID.String()))
		response.Internal(c, "failed to load courses")
		return
	}
	if courses == nil {
		courses = []models.Course{}
	}
	response.OK(c, gin.H{"institution": inst, "courses": courses})
}

// CreateCourse handles POST /institutions/me/courses. New courses start Inactive.
func (h *Handler) CreateCourse(c *gin.Context) {
	inst, ok := h.resolve(c)
	if !ok {
		return
	}
	var req CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	price := decimal.Zero
	if req.PriceOfCourse != "" {
		p, err := decimal.NewFromString(req.PriceOfCourse)
		if err != nil || p.IsNegative() {
			response.BadRequest(c, "price_of_course must be a non-negative number")
			return
		}
		price = p
	}
	course := &models.Course{InstitutionID: inst.ID, Name: strings.TrimSpace(req.Name), PriceOfCourse: price}
	if err := h.repo.CreateCourse(c.Request.Context(), course); err != nil {
		h.logger.Error("create course failed", zap.Error(err), zap.String("institution_id", inst.ID.String()))
		response.Internal(c, "failed to create course")
		return
	}
	response.Created(c, course)
}

func (h *Handler) resolve(c *gin.Context) (*models.Institution, bool) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	inst, err := h.repo.GetByOwner(c.Request.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "institution not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("load institution failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to load institution")
		return nil, false
	}
	return inst, true
}
