package ui

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/academe-ai/academe/internal/answer"
	"github.com/academe-ai/academe/internal/store"
	"github.com/academe-ai/academe/internal/telemetry"
)

// StatusRenderer displays document library state and study statistics.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// RenderDocuments lists the user's documents with ingestion state.
func (r *StatusRenderer) RenderDocuments(userID string, docs []*store.Document) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Documents: "+userID))

	if len(docs) == 0 {
		_, _ = fmt.Fprintln(r.out, "  No documents. Upload one with 'academe ingest'.")
		return nil
	}

	for _, d := range docs {
		_, _ = fmt.Fprintf(r.out, "  %s  %s\n", r.renderDocStatus(d.Status), d.Title)
		_, _ = fmt.Fprintf(r.out, "      %s  %s  %d chunks  %s\n",
			r.styles.Dim.Render(d.ID),
			d.DocType, d.ChunkCount, FormatBytes(d.SizeBytes))
		if d.Status == store.StatusFailed && d.FailureReason != "" {
			_, _ = fmt.Fprintf(r.out, "      %s\n", r.styles.Error.Render(d.FailureReason))
		}
		if !d.UpdatedAt.IsZero() {
			_, _ = fmt.Fprintf(r.out, "      updated %s\n", formatAge(d.UpdatedAt))
		}
	}
	return nil
}

// RenderDocumentsJSON lists documents as indented JSON.
func (r *StatusRenderer) RenderDocumentsJSON(docs []*store.Document) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(docs)
}

// RenderStats displays feedback aggregates and local answer metrics.
// Either argument may be nil when that data source is unavailable.
func (r *StatusRenderer) RenderStats(userID string, stats *answer.StudyStats, snap *telemetry.Snapshot) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Study Stats: "+userID))

	if stats != nil && stats.Feedback != nil {
		fb := stats.Feedback
		_, _ = fmt.Fprintln(r.out, "  Feedback:")
		_, _ = fmt.Fprintf(r.out, "    Rated answers: %d (%d up, %d down)\n",
			fb.Total, fb.Positive, fb.Negative)
		if fb.Total > 0 {
			_, _ = fmt.Fprintf(r.out, "    Satisfaction:  %.0f%%\n", fb.SatisfactionRate*100)
		}
		_, _ = fmt.Fprintln(r.out)
	}

	if stats != nil && len(stats.WeakDocuments) > 0 {
		_, _ = fmt.Fprintln(r.out, "  Weak documents (repeatedly cited in downrated answers):")
		for _, w := range stats.WeakDocuments {
			_, _ = fmt.Fprintf(r.out, "    %s %s\n",
				r.styles.Warning.Render(fmt.Sprintf("%dx", w.NegativeCount)), w.Title)
		}
		_, _ = fmt.Fprintln(r.out)
	}

	if snap != nil && snap.TotalAnswers > 0 {
		_, _ = fmt.Fprintln(r.out, "  Answers this session:")
		_, _ = fmt.Fprintf(r.out, "    Total:      %d\n", snap.TotalAnswers)
		_, _ = fmt.Fprintf(r.out, "    Cache hits: %d (%.0f%%)\n",
			snap.CacheHits, snap.CacheHitRate()*100)
		if snap.LowConfidence > 0 {
			_, _ = fmt.Fprintf(r.out, "    Low confidence: %s\n",
				r.styles.Warning.Render(fmt.Sprintf("%d", snap.LowConfidence)))
		}
		if len(snap.TopTerms) > 0 {
			top := snap.TopTerms
			if len(top) > 5 {
				top = top[:5]
			}
			_, _ = fmt.Fprint(r.out, "    Top terms: ")
			for i, tc := range top {
				if i > 0 {
					_, _ = fmt.Fprint(r.out, ", ")
				}
				_, _ = fmt.Fprintf(r.out, "%s (%d)", tc.Term, tc.Count)
			}
			_, _ = fmt.Fprintln(r.out)
		}
	}
	return nil
}

// RenderStatsJSON emits both data sources as one JSON document.
func (r *StatusRenderer) RenderStatsJSON(stats *answer.StudyStats, snap *telemetry.Snapshot) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"feedback": stats,
		"session":  snap,
	})
}

func (r *StatusRenderer) renderDocStatus(s store.DocStatus) string {
	switch s {
	case store.StatusReady:
		return r.styles.Success.Render("ready  ")
	case store.StatusProcessing:
		return r.styles.Warning.Render("working")
	case store.StatusPending:
		return r.styles.Dim.Render("queued ")
	case store.StatusFailed:
		return r.styles.Error.Render("failed ")
	default:
		return string(s)
	}
}
