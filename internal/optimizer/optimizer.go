package optimizer

import (
	"regexp"
	"strings"
	"sync"
)

// OptimizedPrompt is the result of one optimization pass. CompressionRatio
// is 1 - optimized/original length and stays in [0, 1); Applied lists the
// techniques that changed the prompt.
type OptimizedPrompt struct {
	Prompt           string   `json:"prompt"`
	CompressionRatio float64  `json:"compression_ratio"`
	Applied          []string `json:"applied"`
}

// Stats accumulates optimizer activity for the metrics surface.
type Stats struct {
	Calls        int64   `json:"calls"`
	TotalSaved   int64   `json:"total_chars_saved"`
	AverageRatio float64 `json:"average_ratio"`
}

// Boilerplate phrases that carry no instruction content. Matched
// case-insensitively at word boundaries.
var fillerPhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bplease note that\b\s*`),
	regexp.MustCompile(`(?i)\bit is important to note that\b\s*`),
	regexp.MustCompile(`(?i)\bas an ai language model[,.]?\s*`),
	regexp.MustCompile(`(?i)\bif you would be so kind[,.]?\s*`),
	regexp.MustCompile(`(?i)\bi would like you to\b\s*`),
	regexp.MustCompile(`(?i)\bcould you please\b\s*`),
	regexp.MustCompile(`(?i)\bthank you in advance[,.!]?\s*`),
	regexp.MustCompile(`(?i)\bfeel free to\b\s*`),
}

// Instruction templates that normalize to a shorter canonical form.
var templates = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)\bprovide a detailed explanation of\b`), "explain"},
	{regexp.MustCompile(`(?i)\bgive me a summary of\b`), "summarize"},
	{regexp.MustCompile(`(?i)\bprovide a summary of\b`), "summarize"},
	{regexp.MustCompile(`(?i)\bmake a list of\b`), "list"},
	{regexp.MustCompile(`(?i)\bin as much detail as possible\b`), "in detail"},
}

var repeatedPunct = regexp.MustCompile(`([.!?]){2,}`)

// Optimizer shrinks prompts with generic, content-preserving rewrites.
// The transformation is purely functional; the struct only carries stats.
type Optimizer struct {
	mu         sync.Mutex
	calls      int64
	totalSaved int64
	ratioSum   float64
}

func New() *Optimizer {
	return &Optimizer{}
}

// Optimize applies whitespace collapse, filler stripping and template
// normalization. The result is never longer than the input, and the
// instruction content is preserved.
func (o *Optimizer) Optimize(prompt, operation string) OptimizedPrompt {
	original := prompt
	var applied []string

	collapsed := strings.Join(strings.Fields(prompt), " ")

	// A prompt with no word content is unoptimizable. Returning it
	// untouched keeps the ratio inside [0, 1) and never hands an empty
	// prompt downstream.
	if collapsed == "" {
		o.mu.Lock()
		o.calls++
		o.mu.Unlock()
		return OptimizedPrompt{Prompt: original}
	}

	if collapsed != prompt {
		applied = append(applied, "whitespace-collapse")
	}
	prompt = collapsed

	stripped := prompt
	for _, phrase := range fillerPhrases {
		stripped = phrase.ReplaceAllString(stripped, "")
	}
	stripped = repeatedPunct.ReplaceAllString(stripped, "$1")
	if stripped != prompt {
		applied = append(applied, "boilerplate-strip")
	}
	prompt = stripped

	normalized := prompt
	for _, tpl := range templates {
		normalized = tpl.pattern.ReplaceAllString(normalized, tpl.replacement)
	}
	if normalized != prompt {
		applied = append(applied, "template-normalize")
	}
	prompt = strings.TrimSpace(normalized)

	// Rewrites must never grow the prompt or strip it to nothing.
	if len(prompt) > len(original) {
		prompt = original
		applied = nil
	}
	if prompt == "" && strings.TrimSpace(original) != "" {
		prompt = collapsed
		applied = []string{"whitespace-collapse"}
	}

	ratio := 0.0
	if len(original) > 0 {
		ratio = 1 - float64(len(prompt))/float64(len(original))
		if ratio < 0 {
			ratio = 0
		}
	}

	o.mu.Lock()
	o.calls++
	o.totalSaved += int64(len(original) - len(prompt))
	o.ratioSum += ratio
	o.mu.Unlock()

	return OptimizedPrompt{
		Prompt:           prompt,
		CompressionRatio: ratio,
		Applied:          applied,
	}
}

// BatchOptimize optimizes each prompt independently, preserving order.
func (o *Optimizer) BatchOptimize(prompts []string, operation string) []OptimizedPrompt {
	results := make([]OptimizedPrompt, len(prompts))
	for i, prompt := range prompts {
		results[i] = o.Optimize(prompt, operation)
	}
	return results
}

// Stats snapshots the accumulated counters.
func (o *Optimizer) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	stats := Stats{
		Calls:      o.calls,
		TotalSaved: o.totalSaved,
	}
	if o.calls > 0 {
		stats.AverageRatio = o.ratioSum / float64(o.calls)
	}
	return stats
}
