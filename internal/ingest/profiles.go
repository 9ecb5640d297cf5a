package ingest

import "github.com/academe-ai/academe/internal/store"

// SplitStrategy selects the chunking algorithm for a profile.
type SplitStrategy string

const (
	// StrategyRecursive splits on a separator hierarchy toward a
	// target size.
	StrategyRecursive SplitStrategy = "recursive"
	// StrategySemantic splits on heading and paragraph structure.
	StrategySemantic SplitStrategy = "semantic"
	// StrategyBlock keeps code blocks intact.
	StrategyBlock SplitStrategy = "block"
)

// Profile is the chunking recipe for one document type.
type Profile struct {
	TargetChars  int
	OverlapChars int
	Strategy     SplitStrategy
	// ParentMultiple builds parent chunks of TargetChars*ParentMultiple
	// around the children. Zero disables the hierarchy.
	ParentMultiple int
}

// profiles maps document types to their chunking recipe. Dense prose
// gets larger chunks with more overlap and a parent hierarchy; terse
// notes get small flat chunks.
var profiles = map[store.DocType]Profile{
	store.DocTypeTextbook: {TargetChars: 1200, OverlapChars: 300, Strategy: StrategySemantic, ParentMultiple: 3},
	store.DocTypePaper:    {TargetChars: 800, OverlapChars: 200, Strategy: StrategyRecursive, ParentMultiple: 2},
	store.DocTypeNotes:    {TargetChars: 600, OverlapChars: 100, Strategy: StrategyRecursive},
	store.DocTypeCode:     {TargetChars: 1000, OverlapChars: 150, Strategy: StrategyBlock},
	store.DocTypeGeneral:  {TargetChars: 1000, OverlapChars: 200, Strategy: StrategyRecursive, ParentMultiple: 2},
}

// ProfileFor returns the chunking profile for a document type.
func ProfileFor(dt store.DocType) Profile {
	if p, ok := profiles[dt]; ok {
		return p
	}
	return profiles[store.DocTypeGeneral]
}
