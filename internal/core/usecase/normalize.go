package usecase

import "github.com/kirillkom/compliance-pipeline-client/internal/core/domain"

// NormalizeOutcome converts a backend outcome into its canonical form.
// Bare-string evidence takes its list position as paragraph id and the
// string as both excerpts. Absent lists become empty lists.
func NormalizeOutcome(raw domain.RawOutcome) domain.ComplianceOutcome {
	return domain.ComplianceOutcome{
		RequirementID:      raw.RequirementID,
		Status:             raw.Status,
		FindingLevel:       raw.FindingLevel,
		Justification:      raw.Justification,
		Evidence:           normalizeEvidence(raw.Evidence),
		MissingElements:    nonNil(raw.MissingElements),
		RecommendedActions: nonNil(raw.RecommendedActions),
	}
}

func NormalizeOutcomes(raw []domain.RawOutcome) []domain.ComplianceOutcome {
	out := make([]domain.ComplianceOutcome, 0, len(raw))
	for _, item := range raw {
		out = append(out, NormalizeOutcome(item))
	}
	return out
}

func normalizeEvidence(raw []domain.RawEvidence) []domain.Evidence {
	out := make([]domain.Evidence, 0, len(raw))
	for i, item := range raw {
		if item.Record != nil {
			out = append(out, *item.Record)
			continue
		}
		out = append(out, domain.Evidence{
			ParagraphID:          int64(i),
			RelevantExcerpt:      item.Text,
			FullParagraphExcerpt: item.Text,
		})
	}
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
