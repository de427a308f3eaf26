package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ZanzyTHEbar/team-pulse/internal/errors"
	"github.com/ZanzyTHEbar/team-pulse/internal/types"
	"github.com/gin-gonic/gin"
)

const recentMemberAssessments = 10

type memberRequest struct {
	Code             string  `json:"code" binding:"required,membercode"`
	FullName         string  `json:"fullName" binding:"required,max=255"`
	Email            string  `json:"email" binding:"required,email,max=255"`
	Position         *string `json:"position" binding:"omitempty,max=255"`
	ExperienceMonths *int    `json:"experienceMonths" binding:"omitempty,min=0,max=1200"`
	EmploymentType   *string `json:"employmentType" binding:"omitempty,max=50"`
	IsActive         *bool   `json:"isActive"`
}

func (r *memberRequest) toMember() types.Member {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return types.Member{
		Code:             strings.TrimSpace(r.Code),
		FullName:         strings.TrimSpace(r.FullName),
		Email:            strings.ToLower(strings.TrimSpace(r.Email)),
		Position:         r.Position,
		ExperienceMonths: r.ExperienceMonths,
		EmploymentType:   r.EmploymentType,
		IsActive:         active,
	}
}

// memberPatch carries only the fields a partial update sets
type memberPatch struct {
	Code             *string `json:"code" binding:"omitempty,membercode"`
	FullName         *string `json:"fullName" binding:"omitempty,min=1,max=255"`
	Email            *string `json:"email" binding:"omitempty,email,max=255"`
	Position         *string `json:"position" binding:"omitempty,max=255"`
	ExperienceMonths *int    `json:"experienceMonths" binding:"omitempty,min=0,max=1200"`
	EmploymentType   *string `json:"employmentType" binding:"omitempty,max=50"`
	IsActive         *bool   `json:"isActive"`
}

func (p *memberPatch) apply(m *types.Member) {
	if p.Code != nil {
		m.Code = strings.TrimSpace(*p.Code)
	}
	if p.FullName != nil {
		m.FullName = strings.TrimSpace(*p.FullName)
	}
	if p.Email != nil {
		m.Email = strings.ToLower(strings.TrimSpace(*p.Email))
	}
	if p.Position != nil {
		m.Position = p.Position
	}
	if p.ExperienceMonths != nil {
		m.ExperienceMonths = p.ExperienceMonths
	}
	if p.EmploymentType != nil {
		m.EmploymentType = p.EmploymentType
	}
	if p.IsActive != nil {
		m.IsActive = *p.IsActive
	}
}

type bulkImportRequest struct {
	Members []memberRequest `json:"members" binding:"required,min=1,max=500,dive"`
}

type memberListQuery struct {
	Active *bool  `form:"active"`
	Search string `form:"search"`
	Page   int    `form:"page" binding:"omitempty,min=1"`
	Limit  int    `form:"limit" binding:"omitempty,min=1"`
}

func (h *Handler) listMembers(c *gin.Context) {
	var q memberListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		errors.Respond(c, bindError(err))
		return
	}

	page, limit := types.NormalizePage(q.Page, q.Limit)
	members, total, err := h.store.ListMembers(c.Request.Context(), types.MemberQuery{
		Active: q.Active,
		Search: h.security.SanitizeSearch(q.Search),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		errors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, types.Page[types.Member]{
		Data:       members,
		Pagination: types.NewPagination(page, limit, total),
	})
}

func (h *Handler) getMember(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Param("code")

	member, err := h.store.GetMemberByCode(ctx, code)
	if err != nil {
		errors.Respond(c, err)
		return
	}

	recent, err := h.store.ListAssessments(ctx, types.AssessmentQuery{
		RespondentCode: code,
		OrderDesc:      true,
		Limit:          recentMemberAssessments,
	})
	if err != nil {
		errors.Respond(c, err)
		return
	}

	memberMetrics, err := h.store.ListMetricsByMember(ctx, code)
	if err != nil {
		errors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, types.MemberDetail{
		Member:      *member,
		Assessments: recent,
		Metrics:     memberMetrics,
	})
}

func (h *Handler) createMember(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.Respond(c, bindError(err))
		return
	}

	m := req.toMember()
	created, err := h.store.CreateMember(c.Request.Context(), &m)
	if err != nil {
		errors.Respond(c, err)
		return
	}

	h.invalidate(c)
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) updateMember(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Param("code")

	var patch memberPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		errors.Respond(c, bindError(err))
		return
	}

	existing, err := h.store.GetMemberByCode(ctx, code)
	if err != nil {
		errors.Respond(c, err)
		return
	}
	patch.apply(existing)

	updated, err := h.store.UpdateMember(ctx, code, existing)
	if err != nil {
		errors.Respond(c, err)
		return
	}

	h.invalidate(c)
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) deactivateMember(c *gin.Context) {
	member, err := h.store.DeactivateMember(c.Request.Context(), c.Param("code"))
	if err != nil {
		errors.Respond(c, err)
		return
	}

	h.invalidate(c)
	c.JSON(http.StatusOK, gin.H{
		"message": "Member deactivated successfully",
		"member":  member,
	})
}

func (h *Handler) bulkImportMembers(c *gin.Context) {
	var req bulkImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.Respond(c, bindError(err))
		return
	}

	members := make([]types.Member, len(req.Members))
	seen := make(map[string]bool, len(req.Members))
	for i := range req.Members {
		members[i] = req.Members[i].toMember()
		if seen[members[i].Code] {
			errors.Respond(c, errors.NewValidationError("Duplicate member code in import", members[i].Code))
			return
		}
		seen[members[i].Code] = true
	}

	imported, err := h.store.BulkUpsertMembers(c.Request.Context(), members)
	if err != nil {
		errors.Respond(c, err)
		return
	}

	h.invalidate(c)
	c.JSON(http.StatusCreated, gin.H{
		"message": fmt.Sprintf("Successfully imported %d members", len(imported)),
		"data":    imported,
	})
}
