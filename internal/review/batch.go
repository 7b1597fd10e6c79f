package review

import "github.com/dexterite/prguard/internal/collect"

// budgetFraction leaves headroom in the context window for the system
// prompt, the response instructions, and the model's own output.
const budgetFraction = 0.70

// Batch is a bounded group of files sent together in one request.
type Batch struct {
	Files  []collect.File
	Tokens int

	// Oversized marks the one permitted budget violation: a single file
	// whose own estimate exceeds the budget still ships, alone.
	Oversized bool
}

// Paths returns the repository-relative paths of the batch's files.
func (b *Batch) Paths() []string {
	paths := make([]string, len(b.Files))
	for i, f := range b.Files {
		paths[i] = f.Path
	}
	return paths
}

// EffectiveBudget converts a model's context-window size into the per-batch
// token budget.
func EffectiveBudget(maxContextTokens int) int {
	return int(float64(maxContextTokens) * budgetFraction)
}

// BuildBatches partitions files into batches by greedy accumulation in
// input order. Every file lands in exactly one batch, order is preserved
// within and across batches, and each batch stays within both the token
// budget and maxFiles (zero disables the file-count bound). Identical
// inputs always produce an identical batch sequence.
func BuildBatches(files []collect.File, budget, maxFiles int) []Batch {
	var batches []Batch
	var cur Batch

	flush := func() {
		if len(cur.Files) > 0 {
			batches = append(batches, cur)
			cur = Batch{}
		}
	}

	for _, f := range files {
		tokens := EstimateTokens(f.Content)

		if tokens > budget {
			flush()
			batches = append(batches, Batch{
				Files:     []collect.File{f},
				Tokens:    tokens,
				Oversized: true,
			})
			continue
		}

		if len(cur.Files) > 0 &&
			(cur.Tokens+tokens > budget || (maxFiles > 0 && len(cur.Files) >= maxFiles)) {
			flush()
		}
		cur.Files = append(cur.Files, f)
		cur.Tokens += tokens
	}
	flush()
	return batches
}
