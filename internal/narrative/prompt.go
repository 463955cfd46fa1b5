package narrative

import (
	"fmt"
	"strings"

	"github.com/ppiankov/surveylens/internal/model"
)

const systemPrompt = "You are an analyst comparing survey responses of two organizations. Respond with strict JSON only."

// maxPromptResponses bounds how many responses per organization go into a prompt
const maxPromptResponses = 200

// BuildPrompt renders the comparison payload as an LLM prompt asking for
// similarities, differences and a summary in strict JSON.
func BuildPrompt(req model.ComparisonRequest) string {
	var b strings.Builder

	b.WriteString("Compare two organizations based on their survey responses.\n")
	if req.Clause != "" {
		fmt.Fprintf(&b, "Clause in scope: %s\n", req.Clause)
	}
	if req.StartDate != "" || req.EndDate != "" {
		fmt.Fprintf(&b, "Response window: %s to %s\n", orOpen(req.StartDate), orOpen(req.EndDate))
	}
	b.WriteString("\n")

	writeProfile(&b, "Organization 1", req.Org1)
	b.WriteString("\n")
	writeProfile(&b, "Organization 2", req.Org2)

	b.WriteString(`
Return STRICT JSON with keys: similarities (array of strings), differences (array of strings), summary (string).
Only describe what the responses show. If an organization has no responses in scope, say so.
Do not include any markdown fences.`)

	return b.String()
}

func writeProfile(b *strings.Builder, label string, p model.OrganizationProfile) {
	fmt.Fprintf(b, "%s: %s (year_of_association=%d)", label, p.Name, p.YearOfAssociation)
	if p.Details != "" {
		fmt.Fprintf(b, " details=%s", p.Details)
	}
	b.WriteString("\nResponses:\n")

	if len(p.Responses) == 0 {
		b.WriteString("- (no responses in scope)\n")
		return
	}

	for i, r := range p.Responses {
		if i >= maxPromptResponses {
			fmt.Fprintf(b, "- ... and %d more responses\n", len(p.Responses)-maxPromptResponses)
			break
		}
		fmt.Fprintf(b, "- [%s] Q%d %s: %s", r.Clause, r.QuestionID, r.Question, r.Category)
		if r.Category == model.CategoryOther && r.Answer != "" {
			fmt.Fprintf(b, " (%q)", r.Answer)
		}
		if r.Date != "" {
			fmt.Fprintf(b, " on %s", r.Date)
		}
		if r.Comment != "" {
			fmt.Fprintf(b, "; comment: %s", r.Comment)
		}
		b.WriteString("\n")
	}
}

func orOpen(date string) string {
	if date == "" {
		return "open"
	}
	return date
}
