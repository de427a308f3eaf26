package pgstore

import (
	"encoding/json"
	"time"

	"github.com/ZanzyTHEbar/team-pulse/internal/types"
	"gorm.io/datatypes"
)

type memberModel struct {
	ID               int64   `gorm:"primaryKey;autoIncrement"`
	Code             string  `gorm:"size:10;not null;uniqueIndex"`
	FullName         string  `gorm:"size:255;not null"`
	Email            string  `gorm:"size:255;not null;uniqueIndex"`
	Position         *string `gorm:"size:255"`
	ExperienceMonths *int
	EmploymentType   *string `gorm:"size:50"`
	IsActive         bool    `gorm:"not null;index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (memberModel) TableName() string { return "members" }

type assessmentModel struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	Timestamp       time.Time `gorm:"not null;index"`
	RespondentCode  string    `gorm:"size:10;not null;index"`
	FillTimeMinutes *int

	Leadership        types.RankingMap `gorm:"serializer:json"`
	Expertise         types.RankingMap `gorm:"serializer:json"`
	Collaboration     types.RankingMap `gorm:"serializer:json"`
	Innovation        types.RankingMap `gorm:"serializer:json"`
	Reliability       types.RankingMap `gorm:"serializer:json"`
	Communication     types.RankingMap `gorm:"serializer:json"`
	Adaptability      types.RankingMap `gorm:"serializer:json"`
	Mentorship        types.RankingMap `gorm:"serializer:json"`
	SelfLeadership    types.RankingMap `gorm:"serializer:json"`
	SelfExpertise     types.RankingMap `gorm:"serializer:json"`
	SelfCollaboration types.RankingMap `gorm:"serializer:json"`

	CompetencyMatrix      datatypes.JSON
	FrequentCollaboration datatypes.JSONSlice[string]
	DesiredCollaboration  datatypes.JSONSlice[string]
	LearningSources       datatypes.JSONSlice[string]

	TeamTrustIndex      *float64
	PsychologicalSafety *float64
	RoleSatisfaction    *float64

	CreatedAt time.Time

	Respondent *memberModel `gorm:"foreignKey:RespondentCode;references:Code;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (assessmentModel) TableName() string { return "assessments" }

type metricModel struct {
	ID                 int64  `gorm:"primaryKey;autoIncrement"`
	MemberCode         string `gorm:"size:10;not null;uniqueIndex:idx_metrics_member_assessment"`
	AssessmentID       int64  `gorm:"not null;uniqueIndex:idx_metrics_member_assessment;index"`
	MeanRankLeadership float64
	MeanRankExpertise  float64
	StatusScore        float64
	UpdatedAt          time.Time

	Member     *memberModel     `gorm:"foreignKey:MemberCode;references:Code;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Assessment *assessmentModel `gorm:"foreignKey:AssessmentID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (metricModel) TableName() string { return "metrics" }

type adminModel struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"size:50;not null;uniqueIndex"`
	PasswordHash string `gorm:"size:255;not null"`
	CreatedAt    time.Time
}

func (adminModel) TableName() string { return "admin_users" }

func memberFromDomain(m *types.Member) memberModel {
	return memberModel{
		ID:               m.ID,
		Code:             m.Code,
		FullName:         m.FullName,
		Email:            m.Email,
		Position:         m.Position,
		ExperienceMonths: m.ExperienceMonths,
		EmploymentType:   m.EmploymentType,
		IsActive:         m.IsActive,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func (m *memberModel) toDomain() types.Member {
	return types.Member{
		ID:               m.ID,
		Code:             m.Code,
		FullName:         m.FullName,
		Email:            m.Email,
		Position:         m.Position,
		ExperienceMonths: m.ExperienceMonths,
		EmploymentType:   m.EmploymentType,
		IsActive:         m.IsActive,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func assessmentFromDomain(a *types.Assessment) assessmentModel {
	row := assessmentModel{
		ID:                    a.ID,
		Timestamp:             a.Timestamp,
		RespondentCode:        a.RespondentCode,
		FillTimeMinutes:       a.FillTimeMinutes,
		Leadership:            a.Leadership,
		Expertise:             a.Expertise,
		Collaboration:         a.Collaboration,
		Innovation:            a.Innovation,
		Reliability:           a.Reliability,
		Communication:         a.Communication,
		Adaptability:          a.Adaptability,
		Mentorship:            a.Mentorship,
		SelfLeadership:        a.SelfLeadership,
		SelfExpertise:         a.SelfExpertise,
		SelfCollaboration:     a.SelfCollaboration,
		FrequentCollaboration: datatypes.NewJSONSlice(orEmpty(a.FrequentCollaboration)),
		DesiredCollaboration:  datatypes.NewJSONSlice(orEmpty(a.DesiredCollaboration)),
		LearningSources:       datatypes.NewJSONSlice(orEmpty(a.LearningSources)),
		TeamTrustIndex:        a.TeamTrustIndex,
		PsychologicalSafety:   a.PsychologicalSafety,
		RoleSatisfaction:      a.RoleSatisfaction,
		CreatedAt:             a.CreatedAt,
	}
	if len(a.CompetencyMatrix) > 0 && string(a.CompetencyMatrix) != "null" {
		row.CompetencyMatrix = datatypes.JSON(a.CompetencyMatrix)
	}
	return row
}

func (m *assessmentModel) toDomain() types.Assessment {
	a := types.Assessment{
		ID:                    m.ID,
		Timestamp:             m.Timestamp,
		RespondentCode:        m.RespondentCode,
		FillTimeMinutes:       m.FillTimeMinutes,
		Leadership:            m.Leadership,
		Expertise:             m.Expertise,
		Collaboration:         m.Collaboration,
		Innovation:            m.Innovation,
		Reliability:           m.Reliability,
		Communication:         m.Communication,
		Adaptability:          m.Adaptability,
		Mentorship:            m.Mentorship,
		SelfLeadership:        m.SelfLeadership,
		SelfExpertise:         m.SelfExpertise,
		SelfCollaboration:     m.SelfCollaboration,
		FrequentCollaboration: orEmpty(m.FrequentCollaboration),
		DesiredCollaboration:  orEmpty(m.DesiredCollaboration),
		LearningSources:       orEmpty(m.LearningSources),
		TeamTrustIndex:        m.TeamTrustIndex,
		PsychologicalSafety:   m.PsychologicalSafety,
		RoleSatisfaction:      m.RoleSatisfaction,
		CreatedAt:             m.CreatedAt,
	}
	if len(m.CompetencyMatrix) > 0 && string(m.CompetencyMatrix) != "null" {
		a.CompetencyMatrix = json.RawMessage(m.CompetencyMatrix)
	}
	if m.Respondent != nil {
		a.Respondent = &types.MemberSummary{
			Code:     m.Respondent.Code,
			FullName: m.Respondent.FullName,
			Position: m.Respondent.Position,
		}
	}
	return a
}

func (m *metricModel) toDomain() types.Metric {
	return types.Metric{
		ID:                 m.ID,
		MemberCode:         m.MemberCode,
		AssessmentID:       m.AssessmentID,
		MeanRankLeadership: m.MeanRankLeadership,
		MeanRankExpertise:  m.MeanRankExpertise,
		StatusScore:        m.StatusScore,
		UpdatedAt:          m.UpdatedAt,
	}
}

func orEmpty[T ~[]string](s T) []string {
	if len(s) == 0 {
		return []string{}
	}
	return []string(s)
}
