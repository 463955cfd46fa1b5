package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ppiankov/surveylens/internal/model"
)

// Renderer writes comparison reports as JSON, Markdown, HTML and a terminal summary
type Renderer struct {
	includeFooter bool
	markdown      goldmark.Markdown
}

// NewRenderer creates a renderer
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{
		includeFooter: includeFooter,
		markdown:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// RenderJSON writes the report as indented JSON
func (r *Renderer) RenderJSON(report *model.ComparisonReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// RenderMarkdown writes the report as Markdown
func (r *Renderer) RenderMarkdown(report *model.ComparisonReport, path string) error {
	return writeFile(path, []byte(r.Markdown(report)))
}

// RenderHTML writes the Markdown rendition converted to a standalone HTML page
func (r *Renderer) RenderHTML(report *model.ComparisonReport, path string) error {
	page, err := r.HTML(report)
	if err != nil {
		return err
	}
	return writeFile(path, page)
}

// HTML converts the Markdown rendition to a standalone HTML page
func (r *Renderer) HTML(report *model.ComparisonReport) ([]byte, error) {
	var body bytes.Buffer
	if err := r.markdown.Convert([]byte(r.Markdown(report)), &body); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}

	var page bytes.Buffer
	page.WriteString("<!doctype html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n", html.EscapeString(title(report)))
	page.WriteString("<style>body{font-family:sans-serif;max-width:960px;margin:2em auto}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:4px 8px}</style>\n")
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

// Markdown renders the report
func (r *Renderer) Markdown(report *model.ComparisonReport) string {
	var sb strings.Builder

	sb.WriteString("# " + title(report) + "\n\n")
	writeScope(&sb, report)

	if report.NumericError != "" {
		sb.WriteString("## Responses\n\n")
		sb.WriteString("> Survey data could not be loaded: " + report.NumericError + "\n\n")
	} else {
		writePivot(&sb, report)
		writeTally(&sb, report)
	}

	writeNarrative(&sb, report)
	writeDiagnostics(&sb, report.Diagnostics)

	if r.includeFooter {
		sb.WriteString("---\n\n")
		fmt.Fprintf(&sb, "*Report %s generated %s. Categories are derived from the literal answers; ", report.ID, report.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))
		sb.WriteString("narratives are generated text and are not used in any count.*\n")
	}

	return sb.String()
}

// RenderSummary prints a short tally overview
func (r *Renderer) RenderSummary(w io.Writer, report *model.ComparisonReport) {
	fmt.Fprintf(w, "\n%s\n", title(report))
	fmt.Fprintf(w, "Organizations: %d, questions: %d, records: %d kept of %d\n",
		len(report.Organizations), report.Diagnostics.ExpectedQuestions,
		report.Diagnostics.FilteredRecords, report.Diagnostics.TotalRecords)

	if report.NumericError != "" {
		fmt.Fprintf(w, "Data error: %s\n", report.NumericError)
	}
	for _, row := range report.Tally {
		fmt.Fprintf(w, "  %-30s yes=%d no=%d n/a=%d other=%d none=%d\n",
			truncate(row.Name, 30), row.Yes, row.No, row.NotApplicable, row.Other, row.NoResponse)
	}

	if n := report.Narrative; n != nil {
		fmt.Fprintf(w, "Narrative (%s): %d similarities, %d differences\n", n.Provider, len(n.Similarities), len(n.Differences))
	}
	if report.NarrativeError != "" {
		fmt.Fprintf(w, "Narrative error: %s\n", report.NarrativeError)
	}
	if d := report.Diagnostics; d.InvalidRecords > 0 || d.MalformedResponses > 0 {
		fmt.Fprintf(w, "Skipped: %d invalid records, %d malformed elements\n", d.InvalidRecords, d.MalformedResponses)
	}
}

func title(report *model.ComparisonReport) string {
	names := make([]string, 0, len(report.Organizations))
	for _, org := range report.Organizations {
		names = append(names, org.Name)
	}
	if len(names) == 0 {
		return "Survey Comparison"
	}
	if len(names) > 3 {
		return fmt.Sprintf("Survey Comparison: %s and %d more", strings.Join(names[:3], ", "), len(names)-3)
	}
	return "Survey Comparison: " + strings.Join(names, " vs ")
}

func writeScope(sb *strings.Builder, report *model.ComparisonReport) {
	sb.WriteString("## Scope\n\n")

	clause := "all clauses"
	if report.Clause != nil {
		clause = fmt.Sprintf("%s (clause %d)", report.Clause.DisplayName(), report.Clause.ID)
	} else if report.Scope.ClauseID != nil {
		clause = fmt.Sprintf("clause %d", *report.Scope.ClauseID)
	}
	fmt.Fprintf(sb, "- **Clause:** %s\n", clause)
	fmt.Fprintf(sb, "- **Period:** %s to %s\n", orOpen(report.Scope.StartDate), orOpen(report.Scope.EndDate))

	ids := make([]string, 0, len(report.Scope.OrganizationIDs))
	for _, id := range report.Scope.OrganizationIDs {
		ids = append(ids, strconv.Itoa(id))
	}
	fmt.Fprintf(sb, "- **Organizations:** %s\n\n", strings.Join(ids, ", "))
}

func writePivot(sb *strings.Builder, report *model.ComparisonReport) {
	sb.WriteString("## Responses by Question\n\n")
	if len(report.Pivot) == 0 {
		sb.WriteString("No responses in scope.\n\n")
		return
	}

	labels := make(map[int]string, len(report.Questions))
	for _, q := range report.Questions {
		labels[q.ID] = q.DisplayName()
	}

	sb.WriteString("| Question |")
	for _, org := range report.Organizations {
		sb.WriteString(" " + cell(org.Name) + " |")
	}
	sb.WriteString("\n|---|")
	sb.WriteString(strings.Repeat("---|", len(report.Organizations)))
	sb.WriteString("\n")

	for _, row := range report.Pivot {
		label := fmt.Sprintf("Q%d", row.QuestionID)
		if text := labels[row.QuestionID]; text != "" {
			label += " " + text
		}
		sb.WriteString("| " + cell(label) + " |")
		for _, org := range report.Organizations {
			v, ok := row.Value(org.ID)
			if !ok {
				v = "–"
			}
			sb.WriteString(" " + cell(v) + " |")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

var categoryLabels = map[model.Category]string{
	model.CategoryYes:           "Yes",
	model.CategoryNo:            "No",
	model.CategoryNotApplicable: "N/A",
	model.CategoryOther:         "Other",
	model.CategoryNoResponse:    "No response",
}

func writeTally(sb *strings.Builder, report *model.ComparisonReport) {
	sb.WriteString("## Answer Tally\n\n")
	categories := model.Categories()
	sb.WriteString("| Organization |")
	for _, c := range categories {
		fmt.Fprintf(sb, " %s |", categoryLabels[c])
	}
	sb.WriteString("\n|---|" + strings.Repeat("---:|", len(categories)) + "\n")
	for _, row := range report.Tally {
		fmt.Fprintf(sb, "| %s |", cell(row.Name))
		for _, c := range categories {
			fmt.Fprintf(sb, " %d |", row.Count(c))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func writeNarrative(sb *strings.Builder, report *model.ComparisonReport) {
	if report.Narrative == nil && report.NarrativeError == "" {
		return
	}

	sb.WriteString("## Narrative\n\n")
	if report.NarrativeError != "" {
		sb.WriteString("> Narrative unavailable: " + report.NarrativeError + "\n\n")
		return
	}

	n := report.Narrative
	source := n.Provider
	if n.Model != "" {
		source += "/" + n.Model
	}
	fmt.Fprintf(sb, "*Generated by %s.*\n\n", source)

	writeList(sb, "Similarities", n.Similarities)
	writeList(sb, "Differences", n.Differences)

	sb.WriteString("### Summary\n\n")
	if strings.TrimSpace(n.Summary) == "" {
		sb.WriteString("No summary generated.\n\n")
	} else {
		sb.WriteString(n.Summary + "\n\n")
	}
}

func writeList(sb *strings.Builder, heading string, items []string) {
	sb.WriteString("### " + heading + "\n\n")
	if len(items) == 0 {
		sb.WriteString("None reported.\n\n")
		return
	}
	for _, item := range items {
		sb.WriteString("- " + strings.ReplaceAll(item, "\n", " ") + "\n")
	}
	sb.WriteString("\n")
}

func writeDiagnostics(sb *strings.Builder, d model.Diagnostics) {
	sb.WriteString("## Diagnostics\n\n")
	fmt.Fprintf(sb, "- Records received: %d\n", d.TotalRecords)
	fmt.Fprintf(sb, "- Records in scope: %d\n", d.FilteredRecords)
	fmt.Fprintf(sb, "- Invalid records skipped: %d\n", d.InvalidRecords)
	fmt.Fprintf(sb, "- Expected questions per organization: %d\n", d.ExpectedQuestions)
	if d.MalformedResponses > 0 {
		fmt.Fprintf(sb, "- Malformed elements skipped: %d\n", d.MalformedResponses)
	}
	sb.WriteString("\n")
}

// cell makes s safe inside a GFM table cell
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

func orOpen(date string) string {
	if date == "" {
		return "open"
	}
	return date
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
