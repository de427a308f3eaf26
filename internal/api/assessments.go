package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ZanzyTHEbar/team-pulse/internal/errors"
	"github.com/ZanzyTHEbar/team-pulse/internal/types"
	"github.com/gin-gonic/gin"
)

// assessmentRequest is used for both create and partial update.
// On update, absent maps, lists and nil pointers leave the stored value alone.
type assessmentRequest struct {
	Timestamp       *time.Time `json:"timestamp"`
	RespondentCode  *string    `json:"respondentCode" binding:"omitempty,membercode"`
	FillTimeMinutes *int       `json:"fillTimeMinutes" binding:"omitempty,min=0,max=1440"`

	Leadership        types.RankingMap `json:"leadership" binding:"omitempty,ranks"`
	Expertise         types.RankingMap `json:"expertise" binding:"omitempty,ranks"`
	Collaboration     types.RankingMap `json:"collaboration" binding:"omitempty,ranks"`
	Innovation        types.RankingMap `json:"innovation" binding:"omitempty,ranks"`
	Reliability       types.RankingMap `json:"reliability" binding:"omitempty,ranks"`
	Communication     types.RankingMap `json:"communication" binding:"omitempty,ranks"`
	Adaptability      types.RankingMap `json:"adaptability" binding:"omitempty,ranks"`
	Mentorship        types.RankingMap `json:"mentorship" binding:"omitempty,ranks"`
	SelfLeadership    types.RankingMap `json:"selfLeadership" binding:"omitempty,ranks"`
	SelfExpertise     types.RankingMap `json:"selfExpertise" binding:"omitempty,ranks"`
	SelfCollaboration types.RankingMap `json:"selfCollaboration" binding:"omitempty,ranks"`

	CompetencyMatrix      json.RawMessage `json:"competencyMatrix"`
	FrequentCollaboration []string        `json:"frequentCollaboration" binding:"omitempty,max=100"`
	DesiredCollaboration  []string        `json:"desiredCollaboration" binding:"omitempty,max=100"`
	LearningSources       []string        `json:"learningSources" binding:"omitempty,max=100"`

	TeamTrustIndex      *float64 `json:"teamTrustIndex" binding:"omitempty,min=0,max=10"`
	PsychologicalSafety *float64 `json:"psychologicalSafety" binding:"omitempty,min=0,max=10"`
	RoleSatisfaction    *float64 `json:"roleSatisfaction" binding:"omitempty,min=0,max=10"`
}

func (r *assessmentRequest) apply(a *types.Assessment) {
	if r.Timestamp != nil {
		a.Timestamp = r.Timestamp.UTC()
	}
	if r.RespondentCode != nil {
		a.RespondentCode = *r.RespondentCode
	}
	if r.FillTimeMinutes != nil {
		a.FillTimeMinutes = r.FillTimeMinutes
	}

	for _, dim := range types.Dimensions {
		if m := r.ranking(dim); m != nil {
			a.SetRanking(dim, m)
		}
	}

	if len(r.CompetencyMatrix) > 0 {
		if string(r.CompetencyMatrix) == "null" {
			a.CompetencyMatrix = nil
		} else {
			a.CompetencyMatrix = r.CompetencyMatrix
		}
	}
	if r.FrequentCollaboration != nil {
		a.FrequentCollaboration = r.FrequentCollaboration
	}
	if r.DesiredCollaboration != nil {
		a.DesiredCollaboration = r.DesiredCollaboration
	}
	if r.LearningSources != nil {
		a.LearningSources = r.LearningSources
	}

	if r.TeamTrustIndex != nil {
		a.TeamTrustIndex = r.TeamTrustIndex
	}
	if r.PsychologicalSafety != nil {
		a.PsychologicalSafety = r.PsychologicalSafety
	}
	if r.RoleSatisfaction != nil {
		a.RoleSatisfaction = r.RoleSatisfaction
	}
}

func (r *assessmentRequest) ranking(dim types.Dimension) types.RankingMap {
	switch dim {
	case types.DimensionLeadership:
		return r.Leadership
	case types.DimensionExpertise:
		return r.Expertise
	case types.DimensionCollaboration:
		return r.Collaboration
	case types.DimensionInnovation:
		return r.Innovation
	case types.DimensionReliability:
		return r.Reliability
	case types.DimensionCommunication:
		return r.Communication
	case types.DimensionAdaptability:
		return r.Adaptability
	case types.DimensionMentorship:
		return r.Mentorship
	case types.DimensionSelfLeadership:
		return r.SelfLeadership
	case types.DimensionSelfExpertise:
		return r.SelfExpertise
	case types.DimensionSelfCollaboration:
		return r.SelfCollaboration
	}
	return nil
}

func (h *Handler) bindAssessment(c *gin.Context) (*assessmentRequest, bool) {
	var req assessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.Respond(c, bindError(err))
		return nil, false
	}
	if err := validateMatrix(req.CompetencyMatrix); err != nil {
		errors.Respond(c, err)
		return nil, false
	}
	return &req, true
}

type assessmentListQuery struct {
	RespondentCode string `form:"respondentCode" binding:"omitempty,membercode"`
	Page           int    `form:"page" binding:"omitempty,min=1"`
	Limit          int    `form:"limit" binding:"omitempty,min=1"`
}

func (h *Handler) listAssessments(c *gin.Context) {
	ctx := c.Request.Context()

	var q assessmentListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		errors.Respond(c, bindError(err))
		return
	}
	page, limit := types.NormalizePage(q.Page, q.Limit)

	total, err := h.store.CountAssessments(ctx, q.RespondentCode)
	if err != nil {
		errors.Respond(c, err)
		return
	}

	items, err := h.store.ListAssessments(ctx, types.AssessmentQuery{
		RespondentCode: q.RespondentCode,
		OrderDesc:      true,
		Limit:          limit,
		Offset:         types.Offset(page, limit),
	})
	if err != nil {
		errors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, types.Page[types.Assessment]{
		Data:       items,
		Pagination: types.NewPagination(page, limit, total),
	})
}

func (h *Handler) getAssessment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	a, err := h.store.GetAssessment(ctx, id)
	if err != nil {
		errors.Respond(c, err)
		return
	}
	if a.Metrics, err = h.store.ListMetricsByAssessment(ctx, id); err != nil {
		errors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, a)
}

func (h *Handler) createAssessment(c *gin.Context) {
	req, ok := h.bindAssessment(c)
	if !ok {
		return
	}
	if req.RespondentCode == nil {
		errors.Respond(c, errors.NewValidationErrorWithMap("Request validation failed", map[string]string{
			"respondentCode": "is required",
		}))
		return
	}

	var a types.Assessment
	req.apply(&a)

	created, err := h.store.CreateAssessment(c.Request.Context(), &a)
	if err != nil {
		errors.Respond(c, err)
		return
	}

	h.invalidate(c)
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) updateAssessment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	req, ok := h.bindAssessment(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	existing, err := h.store.GetAssessment(ctx, id)
	if err != nil {
		errors.Respond(c, err)
		return
	}
	req.apply(existing)

	updated, err := h.store.UpdateAssessment(ctx, existing)
	if err != nil {
		errors.Respond(c, err)
		return
	}

	h.invalidate(c)
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) deleteAssessment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.store.DeleteAssessment(c.Request.Context(), id); err != nil {
		errors.Respond(c, err)
		return
	}

	h.invalidate(c)
	c.JSON(http.StatusOK, gin.H{"message": "Assessment deleted successfully"})
}
