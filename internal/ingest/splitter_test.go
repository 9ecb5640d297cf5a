package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academe-ai/academe/internal/store"
)

func TestSplitSectionsByHeadings(t *testing.T) {
	content := `intro before any heading

# Storage

B-trees store sorted data.

## Write-Ahead Logging

WAL ensures durability.`

	sections := splitSections(content)
	require.Len(t, sections, 3)
	assert.Equal(t, "", sections[0].title)
	assert.Equal(t, "Storage", sections[1].title)
	assert.Contains(t, sections[1].body, "B-trees")
	assert.Equal(t, "Write-Ahead Logging", sections[2].title)
}

func TestSplitSectionsNoHeadings(t *testing.T) {
	sections := splitSections("plain text without structure")
	require.Len(t, sections, 1)
	assert.Equal(t, "", sections[0].title)
}

func TestRecursiveSplitRespectsLimit(t *testing.T) {
	sentence := "This sentence pads out the paragraph with filler words. "
	text := strings.Repeat(sentence, 60)

	chunks := splitRecursive(text, 500)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 750, "chunk exceeds 1.5x target")
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
}

func TestRecursiveSplitShortTextUntouched(t *testing.T) {
	chunks := splitRecursive("short text", 500)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestRecursiveSplitPrefersParagraphBoundaries(t *testing.T) {
	para := strings.Repeat("word ", 80) // ~400 chars
	text := para + "\n\n" + para + "\n\n" + para

	chunks := splitRecursive(text, 500)
	require.GreaterOrEqual(t, len(chunks), 2)
	// No chunk should glue two paragraphs across the target.
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 750)
	}
}

func TestSemanticSplitKeepsParagraphsWhole(t *testing.T) {
	p1 := strings.Repeat("alpha ", 50)
	p2 := strings.Repeat("beta ", 50)
	p3 := strings.Repeat("gamma ", 50)
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	chunks := splitSemantic(text, 400)
	require.GreaterOrEqual(t, len(chunks), 2)
	for _, c := range chunks {
		// Paragraphs are never cut mid-word.
		assert.False(t, strings.HasPrefix(c, " "))
	}
}

func TestBlockSplitKeepsFunctionsTogether(t *testing.T) {
	fn := "func handle() {\n\treturn nil\n}"
	text := fn + "\n\n" + strings.ReplaceAll(fn, "handle", "serve") + "\n\n" +
		strings.ReplaceAll(fn, "handle", "close")

	chunks := splitBlocks(text, 60)
	require.GreaterOrEqual(t, len(chunks), 2)
	for _, c := range chunks {
		// A block never ends mid-function: braces stay balanced.
		assert.Equal(t, strings.Count(c, "{"), strings.Count(c, "}"))
	}
}

func TestApplyOverlap(t *testing.T) {
	chunks := applyOverlap([]string{"first chunk tail words", "second chunk"}, 15)
	require.Len(t, chunks, 2)
	assert.Equal(t, "first chunk tail words", chunks[0])
	assert.Contains(t, chunks[1], "tail words")
	assert.True(t, strings.HasSuffix(chunks[1], "second chunk"))
}

func TestChunkDocumentBuildsParentHierarchy(t *testing.T) {
	doc := &store.Document{
		ID: "d1", UserID: "u1", Title: "Databases",
		DocType: store.DocTypeGeneral, // recursive, 2x parent
	}
	sentence := "Indexes accelerate lookups at the cost of write amplification. "
	content := strings.Repeat(sentence, 120)

	chunks := ChunkDocument(doc, content)
	require.NotEmpty(t, chunks)

	var children, parents []*store.Chunk
	for _, c := range chunks {
		if c.IsParent {
			parents = append(parents, c)
		} else {
			children = append(children, c)
		}
	}
	require.NotEmpty(t, children)
	require.NotEmpty(t, parents)

	parentIDs := make(map[string]bool)
	for _, p := range parents {
		parentIDs[p.ID] = true
		assert.Equal(t, "Databases", p.DocTitle)
	}
	for i, c := range children {
		assert.Equal(t, i, c.Position)
		assert.True(t, parentIDs[c.ParentID], "child %s has no parent", c.ID)
		assert.Equal(t, len(c.Content), c.CharCount)
	}
}

func TestChunkDocumentNotesProfileFlat(t *testing.T) {
	doc := &store.Document{ID: "d2", UserID: "u1", Title: "Notes", DocType: store.DocTypeNotes}
	content := strings.Repeat("- quick fact about sorting\n", 80)

	chunks := ChunkDocument(doc, content)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.False(t, c.IsParent)
		assert.Empty(t, c.ParentID)
	}
}

func TestChunkDocumentCarriesSectionTitles(t *testing.T) {
	doc := &store.Document{ID: "d3", UserID: "u1", Title: "Book", DocType: store.DocTypeTextbook}
	content := "# Indexing\n\n" + strings.Repeat("B-trees keep keys sorted for range scans. ", 50)

	chunks := ChunkDocument(doc, content)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, "Indexing", c.SectionTitle)
	}
}

func TestProfileForUnknownTypeFallsBack(t *testing.T) {
	p := ProfileFor(store.DocType("mystery"))
	assert.Equal(t, profiles[store.DocTypeGeneral], p)
}
