package types

import (
	"encoding/json"
	"math"
	"time"
)

// Dimension names a competency that respondents rank their teammates on
type Dimension string

const (
	DimensionLeadership        Dimension = "leadership"
	DimensionExpertise         Dimension = "expertise"
	DimensionCollaboration     Dimension = "collaboration"
	DimensionInnovation        Dimension = "innovation"
	DimensionReliability       Dimension = "reliability"
	DimensionCommunication     Dimension = "communication"
	DimensionAdaptability      Dimension = "adaptability"
	DimensionMentorship        Dimension = "mentorship"
	DimensionSelfLeadership    Dimension = "selfLeadership"
	DimensionSelfExpertise     Dimension = "selfExpertise"
	DimensionSelfCollaboration Dimension = "selfCollaboration"
)

// Dimensions lists every ranking dimension in storage column order
var Dimensions = []Dimension{
	DimensionLeadership,
	DimensionExpertise,
	DimensionCollaboration,
	DimensionInnovation,
	DimensionReliability,
	DimensionCommunication,
	DimensionAdaptability,
	DimensionMentorship,
	DimensionSelfLeadership,
	DimensionSelfExpertise,
	DimensionSelfCollaboration,
}

// RankingMap maps a member code to the 1-based rank a respondent gave them
type RankingMap map[string]int

// Rank returns the rank recorded for code, if any
func (m RankingMap) Rank(code string) (int, bool) {
	if m == nil {
		return 0, false
	}
	r, ok := m[code]
	return r, ok
}

// Member is a team member identified by a short code
type Member struct {
	ID               int64     `json:"id"`
	Code             string    `json:"code"`
	FullName         string    `json:"fullName"`
	Email            string    `json:"email"`
	Position         *string   `json:"position"`
	ExperienceMonths *int      `json:"experienceMonths"`
	EmploymentType   *string   `json:"employmentType"`
	IsActive         bool      `json:"isActive"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// MemberSummary is the respondent projection embedded in assessment listings
type MemberSummary struct {
	Code     string  `json:"code"`
	FullName string  `json:"fullName"`
	Position *string `json:"position"`
}

// MemberDetail is a member with their most recent activity
type MemberDetail struct {
	Member
	Assessments []Assessment `json:"assessments"`
	Metrics     []Metric     `json:"metrics"`
}

// Assessment is one respondent's submission
type Assessment struct {
	ID              int64     `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	RespondentCode  string    `json:"respondentCode"`
	FillTimeMinutes *int      `json:"fillTimeMinutes"`

	Leadership        RankingMap `json:"leadership"`
	Expertise         RankingMap `json:"expertise"`
	Collaboration     RankingMap `json:"collaboration"`
	Innovation        RankingMap `json:"innovation"`
	Reliability       RankingMap `json:"reliability"`
	Communication     RankingMap `json:"communication"`
	Adaptability      RankingMap `json:"adaptability"`
	Mentorship        RankingMap `json:"mentorship"`
	SelfLeadership    RankingMap `json:"selfLeadership"`
	SelfExpertise     RankingMap `json:"selfExpertise"`
	SelfCollaboration RankingMap `json:"selfCollaboration"`

	CompetencyMatrix      json.RawMessage `json:"competencyMatrix" swaggertype:"object"`
	FrequentCollaboration []string        `json:"frequentCollaboration"`
	DesiredCollaboration  []string        `json:"desiredCollaboration"`
	LearningSources       []string        `json:"learningSources"`

	TeamTrustIndex      *float64 `json:"teamTrustIndex"`
	PsychologicalSafety *float64 `json:"psychologicalSafety"`
	RoleSatisfaction    *float64 `json:"roleSatisfaction"`

	CreatedAt time.Time `json:"createdAt"`

	Respondent *MemberSummary `json:"respondent,omitempty"`
	Metrics    []Metric       `json:"metrics,omitempty"`
}

// Ranking returns the ranking map stored for dim, or nil
func (a *Assessment) Ranking(dim Dimension) RankingMap {
	if p := a.rankingField(dim); p != nil {
		return *p
	}
	return nil
}

// SetRanking replaces the ranking map for dim
func (a *Assessment) SetRanking(dim Dimension, m RankingMap) {
	if p := a.rankingField(dim); p != nil {
		*p = m
	}
}

func (a *Assessment) rankingField(dim Dimension) *RankingMap {
	switch dim {
	case DimensionLeadership:
		return &a.Leadership
	case DimensionExpertise:
		return &a.Expertise
	case DimensionCollaboration:
		return &a.Collaboration
	case DimensionInnovation:
		return &a.Innovation
	case DimensionReliability:
		return &a.Reliability
	case DimensionCommunication:
		return &a.Communication
	case DimensionAdaptability:
		return &a.Adaptability
	case DimensionMentorship:
		return &a.Mentorship
	case DimensionSelfLeadership:
		return &a.SelfLeadership
	case DimensionSelfExpertise:
		return &a.SelfExpertise
	case DimensionSelfCollaboration:
		return &a.SelfCollaboration
	}
	return nil
}

// Metric is the derived per-member row for a single assessment
type Metric struct {
	ID                 int64     `json:"id"`
	MemberCode         string    `json:"memberCode"`
	AssessmentID       int64     `json:"assessmentId"`
	MeanRankLeadership float64   `json:"meanRankLeadership"`
	MeanRankExpertise  float64   `json:"meanRankExpertise"`
	StatusScore        float64   `json:"statusScore"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// AdminUser is an account allowed to mutate data
type AdminUser struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// MemberQuery filters member listings
type MemberQuery struct {
	Active *bool
	Search string
	Page   int
	Limit  int
}

// AssessmentQuery filters assessment listings. Limit <= 0 means no limit.
type AssessmentQuery struct {
	RespondentCode string
	OrderDesc      bool
	Limit          int
	Offset         int
}

// Pagination describes a page of a listing
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// NormalizePage clamps page and limit to sane values
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// Offset returns the row offset for a 1-based page
func Offset(page, limit int) int {
	return (page - 1) * limit
}

// NewPagination builds pagination metadata for a listing
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(limit)))
	}
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

// Page is a generic listing envelope
type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}
