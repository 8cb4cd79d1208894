package hooks

import (
	"strings"

	"github.com/lazypower/mempack/internal/engine"
)

// TicketInput is the ticket JSON a hook reads on stdin. Enrichment uses the
// descriptive fields; completion adds the outcome fields. All fields are
// optional at decode time.
type TicketInput struct {
	TicketID           string   `json:"ticket_id"`
	Feature            string   `json:"feature,omitempty"`
	TemplateName       string   `json:"template_name,omitempty"`
	Summary            string   `json:"summary,omitempty"`
	Description        string   `json:"description,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	FilesAffected      []string `json:"files_affected,omitempty"`

	// Completion
	ExternalRef        string   `json:"external_ref,omitempty"`
	PRURL              string   `json:"pr_url,omitempty"`
	EffectivenessScore *float64 `json:"effectiveness_score,omitempty"`

	// PessScore is the legacy 0-100 effectiveness scale.
	PessScore *float64 `json:"pess_score,omitempty"`
}

// featureHint drops the "unknown" placeholder ticket systems fill in.
func (t *TicketInput) featureHint() string {
	f := strings.TrimSpace(t.Feature)
	if strings.EqualFold(f, "unknown") {
		return ""
	}
	return f
}

// EnrichRequest maps the ticket onto an enrichment request. Acceptance
// criteria join the description so file paths mentioned there are found.
func (t *TicketInput) EnrichRequest() engine.EnrichRequest {
	desc := t.Description
	if len(t.AcceptanceCriteria) > 0 {
		desc = strings.TrimSpace(desc + "\n" + strings.Join(t.AcceptanceCriteria, "\n"))
	}
	return engine.EnrichRequest{
		FeatureHint: t.featureHint(),
		UoWID:       t.TicketID,
		Files:       t.FilesAffected,
		Category:    t.TemplateName,
		Description: desc,
	}
}

// CompletionRequest maps the ticket onto a completion.
func (t *TicketInput) CompletionRequest() engine.CompletionRequest {
	ref := t.ExternalRef
	if ref == "" {
		ref = t.PRURL
	}
	score := t.EffectivenessScore
	if score == nil && t.PessScore != nil {
		v := *t.PessScore / 100
		score = &v
	}
	return engine.CompletionRequest{
		FeatureID:          t.featureHint(),
		UoWID:              t.TicketID,
		Summary:            t.Summary,
		Requirement:        t.Description,
		ExternalRef:        ref,
		EffectivenessScore: score,
		Category:           t.TemplateName,
	}
}
