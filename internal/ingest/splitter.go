package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/academe-ai/academe/internal/store"
)

// Separator hierarchy for recursive splitting, coarsest first.
var recursiveSeparators = []string{"\n\n", "\n", ". ", " "}

// maxStretch allows a chunk to run this factor past the target before
// it gets split further.
const maxStretch = 1.5

var sectionHeadingRe = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

type section struct {
	title string
	body  string
}

// splitSections breaks markdown-ish content at headings. Content with
// no headings comes back as one untitled section.
func splitSections(content string) []section {
	matches := sectionHeadingRe.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return []section{{body: content}}
	}

	var sections []section
	if lead := strings.TrimSpace(content[:matches[0][0]]); lead != "" {
		sections = append(sections, section{body: lead})
	}
	for i, m := range matches {
		title := strings.TrimSpace(content[m[4]:m[5]])
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := strings.TrimSpace(content[m[1]:end])
		if body == "" {
			continue
		}
		sections = append(sections, section{title: title, body: body})
	}
	return sections
}

// splitRecursive splits text toward the target size using the
// separator hierarchy. No piece exceeds maxStretch times the target
// unless it is an unsplittable run.
func splitRecursive(text string, target int) []string {
	return splitWithSeparators(text, target, recursiveSeparators)
}

func splitWithSeparators(text string, target int, seps []string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	limit := int(float64(target) * maxStretch)
	if len(text) <= limit {
		return []string{text}
	}
	if len(seps) == 0 {
		// Unsplittable run: hard cut.
		var out []string
		for len(text) > limit {
			out = append(out, text[:target])
			text = text[target:]
		}
		if text != "" {
			out = append(out, text)
		}
		return out
	}

	sep := seps[0]
	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return splitWithSeparators(text, target, seps[1:])
	}

	// Re-attach the separator so sentence boundaries survive.
	segments := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			p += sep
		}
		if strings.TrimSpace(p) != "" {
			segments = append(segments, p)
		}
	}

	var out []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			out = append(out, s)
		}
		current.Reset()
	}
	for _, seg := range segments {
		if len(seg) > limit {
			flush()
			out = append(out, splitWithSeparators(seg, target, seps[1:])...)
			continue
		}
		if current.Len() > 0 && current.Len()+len(seg) > target {
			flush()
		}
		current.WriteString(seg)
	}
	flush()
	return out
}

// splitSemantic groups whole paragraphs toward the target size, never
// cutting mid-paragraph unless a single paragraph overruns the limit.
func splitSemantic(text string, target int) []string {
	paragraphs := strings.Split(text, "\n\n")
	limit := int(float64(target) * maxStretch)

	var out []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			out = append(out, s)
		}
		current.Reset()
	}
	for _, p := range paragraphs {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if len(p) > limit {
			flush()
			out = append(out, splitRecursive(p, target)...)
			continue
		}
		if current.Len() > 0 && current.Len()+len(p) > target {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()
	return out
}

// blockBoundaryRe marks lines that start a new top-level code block.
var blockBoundaryRe = regexp.MustCompile(`^(?:func |def |class |type |public |private |CREATE |SELECT )`)

// splitBlocks keeps code blocks intact: blank-line groups and
// declaration boundaries delimit blocks, which are then packed toward
// the target size.
func splitBlocks(text string, target int) []string {
	lines := strings.Split(text, "\n")
	limit := int(float64(target) * maxStretch)

	var blocks []string
	var block []string
	endBlock := func() {
		if len(block) > 0 {
			blocks = append(blocks, strings.Join(block, "\n"))
			block = nil
		}
	}
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			blank = true
			block = append(block, line)
			continue
		}
		if blank && blockBoundaryRe.MatchString(line) {
			endBlock()
		}
		blank = false
		block = append(block, line)
	}
	endBlock()

	var out []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimRight(current.String(), "\n"); strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
		current.Reset()
	}
	for _, b := range blocks {
		if len(b) > limit {
			flush()
			out = append(out, splitWithSeparators(b, target, []string{"\n", " "})...)
			continue
		}
		if current.Len() > 0 && current.Len()+len(b) > target {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(b)
	}
	flush()
	return out
}

// applyOverlap prefixes each chunk after the first with the tail of
// its predecessor, cut at a word boundary.
func applyOverlap(chunks []string, overlap int) []string {
	if overlap <= 0 || len(chunks) < 2 {
		return chunks
	}
	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		tail := chunks[i-1]
		if len(tail) > overlap {
			tail = tail[len(tail)-overlap:]
			if idx := strings.IndexByte(tail, ' '); idx >= 0 && idx < len(tail)-1 {
				tail = tail[idx+1:]
			}
		}
		out[i] = tail + "\n" + chunks[i]
	}
	return out
}

// ChunkDocument splits content according to the document's type
// profile and returns child chunks followed by any parent chunks.
func ChunkDocument(doc *store.Document, content string) []*store.Chunk {
	profile := ProfileFor(doc.DocType)

	type piece struct {
		text    string
		section string
	}
	var pieces []piece
	for _, sec := range splitSections(content) {
		var texts []string
		switch profile.Strategy {
		case StrategySemantic:
			texts = splitSemantic(sec.body, profile.TargetChars)
		case StrategyBlock:
			texts = splitBlocks(sec.body, profile.TargetChars)
		default:
			texts = splitRecursive(sec.body, profile.TargetChars)
		}
		texts = applyOverlap(texts, profile.OverlapChars)
		for _, t := range texts {
			pieces = append(pieces, piece{text: t, section: sec.title})
		}
	}

	children := make([]*store.Chunk, 0, len(pieces))
	for i, p := range pieces {
		children = append(children, &store.Chunk{
			ID:           fmt.Sprintf("%s_%d", doc.ID, i),
			DocumentID:   doc.ID,
			UserID:       doc.UserID,
			Position:     i,
			Content:      p.text,
			SectionTitle: p.section,
			DocTitle:     doc.Title,
			CharCount:    len(p.text),
		})
	}

	if profile.ParentMultiple <= 0 || len(children) < 2 {
		return children
	}

	parentTarget := profile.TargetChars * profile.ParentMultiple
	chunks := make([]*store.Chunk, 0, len(children)+len(children)/profile.ParentMultiple+1)
	chunks = append(chunks, children...)

	parentIdx := 0
	var group []*store.Chunk
	groupSize := 0
	flush := func() {
		if len(group) == 0 {
			return
		}
		parent := &store.Chunk{
			ID:           fmt.Sprintf("%s_p%d", doc.ID, parentIdx),
			DocumentID:   doc.ID,
			UserID:       doc.UserID,
			Position:     len(children) + parentIdx,
			SectionTitle: group[0].SectionTitle,
			DocTitle:     doc.Title,
			IsParent:     true,
		}
		var b strings.Builder
		for i, c := range group {
			if i > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(c.Content)
			c.ParentID = parent.ID
		}
		parent.Content = b.String()
		parent.CharCount = len(parent.Content)
		chunks = append(chunks, parent)
		parentIdx++
		group = nil
		groupSize = 0
	}
	for _, c := range children {
		if groupSize > 0 && groupSize+c.CharCount > parentTarget {
			flush()
		}
		group = append(group, c)
		groupSize += c.CharCount
	}
	flush()

	return chunks
}
