package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/sourcecheck/internal/model"
)

// Renderer writes reports as JSON, Markdown and a terminal summary
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a renderer
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// RenderReport writes the requested outputs and prints a summary to out
func (r *Renderer) RenderReport(report *model.Report, jsonPath, mdPath string, out io.Writer, verbose bool) error {
	if jsonPath != "" {
		if err := r.RenderJSON(report, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			fmt.Fprintf(out, "✓ Wrote JSON: %s\n", jsonPath)
		}
	}

	if mdPath != "" {
		if err := r.RenderMarkdown(report, mdPath); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose {
			fmt.Fprintf(out, "✓ Wrote Markdown: %s\n", mdPath)
		}
	}

	r.RenderSummary(report, out)
	return nil
}

// RenderJSON writes the report as indented JSON
func (r *Renderer) RenderJSON(report *model.Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// RenderMarkdown writes the report as Markdown
func (r *Renderer) RenderMarkdown(report *model.Report, path string) error {
	return writeFile(path, []byte(r.Markdown(report)))
}

// Markdown formats the report as a Markdown document
func (r *Renderer) Markdown(report *model.Report) string {
	var b strings.Builder

	b.WriteString("# Verification Report\n\n")
	if report.Partial {
		b.WriteString("> **Partial run:** the deadline passed before every claim was verified.\n\n")
	}

	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Overall score | %.3f |\n", report.OverallScore)
	fmt.Fprintf(&b, "| Claims | %d |\n", report.TotalClaims)
	fmt.Fprintf(&b, "| Supported | %d |\n", report.SupportedCount)
	fmt.Fprintf(&b, "| Refuted | %d |\n", report.RefutedCount)
	fmt.Fprintf(&b, "| Insufficient evidence | %d |\n", report.InsufficientCount)
	fmt.Fprintf(&b, "| Support rate | %.1f%% |\n\n", report.SupportRate*100)

	if len(report.Dispositions) > 0 {
		b.WriteString("## Claims\n\n")
	}
	for i, d := range report.Dispositions {
		fmt.Fprintf(&b, "### %d. `%s`: %s\n\n", i+1, d.Field, verdictLabel(d.Verdict))
		fmt.Fprintf(&b, "> %s\n\n", escapeQuote(d.ClaimText))
		fmt.Fprintf(&b, "- Validator: %s\n", d.Validator)
		if d.Confidence != nil {
			fmt.Fprintf(&b, "- Confidence: %.3f\n", *d.Confidence)
		}
		if d.QualityScore != nil {
			fmt.Fprintf(&b, "- Quality: %.2f\n", *d.QualityScore)
		}
		if d.Explanation != "" {
			fmt.Fprintf(&b, "- Explanation: %s\n", d.Explanation)
		}
		b.WriteString("\n")

		if len(d.Evidence) > 0 {
			fmt.Fprintf(&b, "**Evidence (%d)**\n\n", d.EvidenceCount)
			for _, ev := range d.Evidence {
				fmt.Fprintf(&b, "- (%.3f) %s\n", ev.Score, escapeQuote(ev.Text))
			}
			b.WriteString("\n")
		}

		if len(d.QualityIssues) > 0 {
			b.WriteString("**Quality issues**\n\n")
			for _, q := range d.QualityIssues {
				fmt.Fprintf(&b, "- [%s] %s: %s", q.Severity, q.Type, q.Detail)
				if q.Suggestion != "" {
					fmt.Fprintf(&b, " (%s)", q.Suggestion)
				}
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
	}

	if r.includeFooter {
		b.WriteString("---\n\n")
		b.WriteString("_Verdicts describe how well the source text supports each claim. They are not a judgement of truth._\n")
	}
	return b.String()
}

// RenderSummary prints a short verdict overview
func (r *Renderer) RenderSummary(report *model.Report, out io.Writer) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(out, "  Overall score: %.3f   Support rate: %.1f%%\n", report.OverallScore, report.SupportRate*100)
	fmt.Fprintf(out, "  Claims: %d   ✓ %d supported   ✗ %d refuted   ? %d insufficient\n",
		report.TotalClaims, report.SupportedCount, report.RefutedCount, report.InsufficientCount)
	if report.Partial {
		fmt.Fprintln(out, "  ⚠ Partial run: some claims were not verified before the deadline")
	}
	fmt.Fprintln(out, "═══════════════════════════════════════════════════════════")

	for _, d := range report.Dispositions {
		fmt.Fprintf(out, "  %s %-20s %s\n", verdictMark(d.Verdict), d.Field, truncateText(d.ClaimText, 60))
	}
}

func verdictLabel(v model.Verdict) string {
	switch v {
	case model.VerdictSupported:
		return "supported"
	case model.VerdictRefuted:
		return "refuted"
	}
	return "insufficient evidence"
}

func verdictMark(v model.Verdict) string {
	switch v {
	case model.VerdictSupported:
		return "✓"
	case model.VerdictRefuted:
		return "✗"
	}
	return "?"
}

func escapeQuote(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
}

func truncateText(s string, n int) string {
	s = escapeQuote(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
