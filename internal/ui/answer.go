package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/academe-ai/academe/internal/answer"
)

// AnswerRenderer displays an answer with its citations and diagnostics.
type AnswerRenderer struct {
	out     io.Writer
	styles  Styles
	verbose bool
}

// NewAnswerRenderer creates an answer renderer. When verbose is set the
// diagnostics block is printed after the citations.
func NewAnswerRenderer(out io.Writer, noColor, verbose bool) *AnswerRenderer {
	return &AnswerRenderer{
		out:     out,
		styles:  GetStyles(noColor),
		verbose: verbose,
	}
}

// Render writes the answer as formatted terminal output.
func (r *AnswerRenderer) Render(ans *answer.Answer) error {
	if ans == nil {
		return fmt.Errorf("nil answer")
	}

	_, _ = fmt.Fprintln(r.out, strings.TrimSpace(ans.Text))

	if len(ans.Citations) > 0 {
		_, _ = fmt.Fprintf(r.out, "\n%s\n", r.styles.Header.Render("Sources"))
		for _, c := range ans.Citations {
			header := c.DocTitle
			if c.Section != "" {
				header += ", " + c.Section
			}
			_, _ = fmt.Fprintf(r.out, "  [%d] %s\n", c.Index, r.styles.Label.Render(header))
			if c.Snippet != "" {
				_, _ = fmt.Fprintf(r.out, "      %s\n", r.styles.Citation.Render(c.Snippet))
			}
		}
	}

	if ans.Diagnostics.LowConfidence {
		_, _ = fmt.Fprintf(r.out, "\n%s\n",
			r.styles.Warning.Render("Low confidence: the available material may not fully cover this question."))
	}
	if ans.Diagnostics.Degraded {
		_, _ = fmt.Fprintf(r.out, "%s\n",
			r.styles.Warning.Render("Partial retrieval: some search signals were unavailable."))
	}

	if r.verbose {
		r.renderDiagnostics(ans.Diagnostics)
	}
	return nil
}

// RenderJSON writes the answer as indented JSON.
func (r *AnswerRenderer) RenderJSON(ans *answer.Answer) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(ans)
}

func (r *AnswerRenderer) renderDiagnostics(d answer.Diagnostics) {
	_, _ = fmt.Fprintf(r.out, "\n%s\n", r.styles.Header.Render("Diagnostics"))
	_, _ = fmt.Fprintf(r.out, "  Strategy:   %s\n", d.Strategy)
	if d.QueryType != "" {
		_, _ = fmt.Fprintf(r.out, "  Query type: %s\n", d.QueryType)
	}
	_, _ = fmt.Fprintf(r.out, "  Cache hit:  %v\n", d.CacheHit)
	if d.Reformulated > 0 {
		_, _ = fmt.Fprintf(r.out, "  Rewrites:   %d\n", d.Reformulated)
	}
	if d.Decomposed > 0 {
		_, _ = fmt.Fprintf(r.out, "  Sub-questions: %d\n", d.Decomposed)
	}
	if d.SelfRAGIterations > 0 {
		_, _ = fmt.Fprintf(r.out, "  Retrieval retries: %d\n", d.SelfRAGIterations)
	}
	_, _ = fmt.Fprintf(r.out, "  Duration:   %s\n",
		(time.Duration(d.DurationMS) * time.Millisecond).Round(time.Millisecond))
}
