// Package compiler lowers an authored UI graph plus a declarative input
// spec into the executable prompt-graph consumed by worker nodes.
package compiler

import (
	"context"
	"math/rand"
	"sync"

	"github.com/pixeon/renderplane/cmd/controlplane/catalog"
	"github.com/pixeon/renderplane/cmd/controlplane/models"
)

// Options carries everything one compilation needs. Rand must be non-nil;
// callers that need reproducible output inject a seeded source. Catalog and
// Merger are optional: without a catalog the schema coercion pass is
// skipped, without a merger coinciding image/mask bindings are an error.
type Options struct {
	UIGraph []byte
	Spec    *models.Spec
	Mode    string

	TextInputs  map[string]string
	ParamInputs map[string]any
	Files       map[string]string

	Rand    *rand.Rand
	Catalog *catalog.Catalog
	Merger  FileMerger
}

// Result is a compiled, sanitized, ready-to-dispatch payload.
type Result struct {
	// Payload is {"prompt": {...}, "extra_pnginfo": [...]?}.
	Payload map[string]any
	// Files maps input keys to storage paths, rewritten when a mask was
	// merged into its base image.
	Files map[string]string
	// Warnings lists schema coercions applied during validation.
	Warnings []string
}

// Compile parses the UI graph, applies spec bindings and seed modes,
// builds the executable prompt-graph from the active node set, and runs
// the sanitizer (and, when a catalog is present, schema validation).
func Compile(ctx context.Context, opts Options) (*Result, error) {
	g, err := ParseGraph(opts.UIGraph)
	if err != nil {
		return nil, err
	}

	mode := opts.Mode
	if mode == "" {
		mode = models.DefaultMode
	}

	files, err := applyBindings(ctx, g, opts.Spec, opts.TextInputs, opts.ParamInputs, opts.Files, mode, opts.Merger)
	if err != nil {
		return nil, err
	}

	applySeedRandomization(g, opts.Rand)

	prompt, err := BuildPrompt(g, opts.Rand)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{"prompt": prompt}
	if extra := NormalizeExtraPNGInfo(g.ExtraPNGInfo); extra != nil {
		payload["extra_pnginfo"] = extra
	}

	payload = Sanitize(payload)

	res := &Result{Payload: payload, Files: files}
	if opts.Catalog != nil {
		res.Warnings = ValidateAndFix(payload, opts.Catalog)
	}
	return res, nil
}

// NewSeedSource returns a rand.Rand whose source is safe to share across
// concurrent compilations. math/rand sources are not goroutine-safe on
// their own, and one source serves every submission in a process.
func NewSeedSource(seed int64) *rand.Rand {
	return rand.New(&lockedSource{src: rand.NewSource(seed)})
}

type lockedSource struct {
	mu  sync.Mutex
	src rand.Source
}

func (s *lockedSource) Int63() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Int63()
}

func (s *lockedSource) Seed(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.src.Seed(seed)
}

// Recompile runs the sanitizer and optional schema validation over an
// already-built payload. The scheduler uses it right before dispatch so a
// stored snapshot picks up node-specific schema fixes.
func Recompile(payload map[string]any, cat *catalog.Catalog) (map[string]any, []string) {
	payload = Sanitize(payload)
	if cat == nil {
		return payload, nil
	}
	return payload, ValidateAndFix(payload, cat)
}
