package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type ComplianceStatus string

const (
	ComplianceFull    ComplianceStatus = "full"
	CompliancePartial ComplianceStatus = "partial"
	ComplianceNone    ComplianceStatus = "non"
)

// ParseComplianceStatus accepts the three backend values plus "" and "all",
// which both mean no filter.
func ParseComplianceStatus(raw string) (ComplianceStatus, error) {
	switch ComplianceStatus(raw) {
	case "", "all":
		return "", nil
	case ComplianceFull, CompliancePartial, ComplianceNone:
		return ComplianceStatus(raw), nil
	default:
		return "", WrapError(ErrInvalidInput, "parse compliance status", fmt.Errorf("unknown status %q", raw))
	}
}

type AnalysisRequest struct {
	DocumentID        string
	RegulationID      string
	RegulationVersion string
}

type AnalysisStart struct {
	AnalysisID string `json:"analysisId"`
	Message    string `json:"message"`
}

// AnalysisReport is the unfiltered report. Status is only present on
// deployments that expose run state alongside the outcomes.
type AnalysisReport struct {
	AnalysisID        string       `json:"analysisId"`
	MoeID             string       `json:"moeId"`
	RegulationVersion string       `json:"regulationVersion"`
	TotalRequirements int          `json:"totalRequirements"`
	Status            string       `json:"status,omitempty"`
	Compliance        []RawOutcome `json:"compliance"`
}

type Evidence struct {
	ParagraphID          int64   `json:"moe_paragraph_id"`
	RelevantExcerpt      string  `json:"relevant_excerpt"`
	FullParagraphExcerpt string  `json:"full_paragraph_excerpt"`
	SimilarityScore      float64 `json:"similarity_score"`
	RerankScore          float64 `json:"rerank_score"`
}

// RawEvidence holds one evidence entry as the backend sent it: either a
// bare excerpt string or a structured record.
type RawEvidence struct {
	Text   string
	Record *Evidence
}

func (e *RawEvidence) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*e = RawEvidence{}
		return nil
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return fmt.Errorf("decode evidence text: %w", err)
		}
		*e = RawEvidence{Text: text}
		return nil
	}
	var record Evidence
	if err := json.Unmarshal(trimmed, &record); err != nil {
		return fmt.Errorf("decode evidence record: %w", err)
	}
	*e = RawEvidence{Record: &record}
	return nil
}

func (e RawEvidence) MarshalJSON() ([]byte, error) {
	if e.Record != nil {
		return json.Marshal(e.Record)
	}
	return json.Marshal(e.Text)
}

type RawOutcome struct {
	RequirementID      string           `json:"requirement_id"`
	Status             ComplianceStatus `json:"compliance_status"`
	FindingLevel       string           `json:"finding_level"`
	Justification      string           `json:"justification"`
	Evidence           []RawEvidence    `json:"evidence"`
	MissingElements    []string         `json:"missing_elements"`
	RecommendedActions []string         `json:"recommended_actions"`
}

type ComplianceOutcome struct {
	RequirementID      string           `json:"requirement_id"`
	Status             ComplianceStatus `json:"compliance_status"`
	FindingLevel       string           `json:"finding_level"`
	Justification      string           `json:"justification"`
	Evidence           []Evidence       `json:"evidence"`
	MissingElements    []string         `json:"missing_elements"`
	RecommendedActions []string         `json:"recommended_actions"`
}

type PageQuery struct {
	AnalysisID   string
	Page         int
	Size         int
	Status       ComplianceStatus
	FindingLevel string
}

type Page[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Size          int   `json:"size"`
	Number        int   `json:"number"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

type StatusCounts struct {
	Full    int `json:"full"`
	Partial int `json:"partial"`
	Non     int `json:"non"`
}

func (c StatusCounts) Total() int {
	return c.Full + c.Partial + c.Non
}

// Add tallies one outcome status. Unknown values are ignored.
func (c *StatusCounts) Add(status ComplianceStatus) {
	switch status {
	case ComplianceFull:
		c.Full++
	case CompliancePartial:
		c.Partial++
	case ComplianceNone:
		c.Non++
	}
}
