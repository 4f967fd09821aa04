// Package component is the registry and factory for pipeline
// components. Components register under a closed category set with a
// JSON-Schema config schema; creation validates params against the
// schema and verifies the instance implements the category's
// interface.
package component

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ragline/ragline/internal/chunker"
	"github.com/ragline/ragline/internal/embed"
	"github.com/ragline/ragline/internal/errors"
	"github.com/ragline/ragline/internal/indexer"
	"github.com/ragline/ragline/internal/optimizer"
	"github.com/ragline/ragline/internal/parser"
	"github.com/ragline/ragline/internal/searcher"
)

// Category identifies a component family.
type Category string

// The closed category set.
const (
	CategoryParser    Category = "parsers"
	CategoryChunker   Category = "chunkers"
	CategoryEmbedder  Category = "embedders"
	CategoryIndexer   Category = "indexers"
	CategorySearcher  Category = "searchers"
	CategoryOptimizer Category = "optimizers"
)

// Categories lists every valid category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryParser, CategoryChunker, CategoryEmbedder,
		CategoryIndexer, CategorySearcher, CategoryOptimizer,
	}
}

func validCategory(cat Category) bool {
	switch cat {
	case CategoryParser, CategoryChunker, CategoryEmbedder,
		CategoryIndexer, CategorySearcher, CategoryOptimizer:
		return true
	}
	return false
}

// Deps carries shared infrastructure injected into constructors.
// Constructors use what they need and ignore the rest.
type Deps struct {
	Embedder embed.Embedder
	Vector   *indexer.VectorIndexer
	Text     *indexer.TextIndexer
	Logger   *slog.Logger
}

// Spec describes one registrable component.
type Spec struct {
	Name        string
	Description string
	// Schema is the JSON-Schema for the component's params. Empty
	// means no params are accepted.
	Schema string
	// Dimension is the embedder output dimension, when fixed and known
	// at registration. Zero otherwise.
	Dimension int
	// New constructs an instance from validated params.
	New func(params map[string]any, deps Deps) (any, error)
}

// Info is the metadata List returns per component.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Dimension   int    `json:"dimension,omitempty"`
}

// emptySchema rejects any param for components that take none.
const emptySchema = `{"type": "object", "additionalProperties": false}`

type registered struct {
	spec     Spec
	compiled *jsonschema.Schema
}

// Registry holds registered components by category and name.
type Registry struct {
	mu         sync.RWMutex
	components map[Category]map[string]registered
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{components: make(map[Category]map[string]registered)}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the shared registry with all builtins registered.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		if err := RegisterBuiltins(defaultRegistry); err != nil {
			panic(fmt.Sprintf("register builtin components: %v", err))
		}
	})
	return defaultRegistry
}

// Register adds a component spec. Registering the same (category, name)
// again replaces the previous spec, so registration is idempotent.
func (r *Registry) Register(cat Category, spec Spec) error {
	if !validCategory(cat) {
		return errors.Validation(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown component category %q", cat))
	}
	if spec.Name == "" {
		return errors.Validation(errors.ErrCodeConfigInvalid,
			"component name is required")
	}
	if spec.New == nil {
		return errors.Validation(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("component %s/%s has no constructor", cat, spec.Name))
	}

	schema := spec.Schema
	if schema == "" {
		schema = emptySchema
	}
	compiled, err := jsonschema.CompileString(string(cat)+"/"+spec.Name, schema)
	if err != nil {
		return errors.Validation(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("component %s/%s schema does not compile: %v", cat, spec.Name, err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.components[cat] == nil {
		r.components[cat] = make(map[string]registered)
	}
	r.components[cat][spec.Name] = registered{spec: spec, compiled: compiled}
	return nil
}

// Create validates params against the component's schema, constructs an
// instance, and verifies it implements the category's interface.
func (r *Registry) Create(cat Category, name string, params map[string]any, deps Deps) (any, error) {
	reg, err := r.lookup(cat, name)
	if err != nil {
		return nil, err
	}
	if err := validateParams(reg.compiled, cat, name, params); err != nil {
		return nil, err
	}

	instance, err := reg.spec.New(params, deps)
	if err != nil {
		return nil, err
	}
	if !implementsCategory(cat, instance) {
		return nil, errors.Internal(
			fmt.Sprintf("component %s/%s constructed a %T, which does not implement the category interface", cat, name, instance), nil)
	}
	return instance, nil
}

// Validate runs schema validation only, without constructing.
func (r *Registry) Validate(cat Category, name string, params map[string]any) error {
	reg, err := r.lookup(cat, name)
	if err != nil {
		return err
	}
	return validateParams(reg.compiled, cat, name, params)
}

// List returns metadata for every component in the category, sorted by
// name. Unknown categories return nil.
func (r *Registry) List(cat Category) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName := r.components[cat]
	if len(byName) == 0 {
		return nil
	}
	infos := make([]Info, 0, len(byName))
	for _, reg := range byName {
		infos = append(infos, Info{
			Name:        reg.spec.Name,
			Description: reg.spec.Description,
			Dimension:   reg.spec.Dimension,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func (r *Registry) lookup(cat Category, name string) (registered, error) {
	if !validCategory(cat) {
		return registered{}, errors.Validation(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown component category %q", cat))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.components[cat][name]
	if !ok {
		available := make([]string, 0, len(r.components[cat]))
		for n := range r.components[cat] {
			available = append(available, n)
		}
		sort.Strings(available)
		return registered{}, errors.Validation(errors.ErrCodeUnknownComponent,
			fmt.Sprintf("unknown component %q in %s; available: %s",
				name, cat, strings.Join(available, ", ")))
	}
	return reg, nil
}

// validateParams round-trips params through JSON so schema validation
// sees canonical types.
func validateParams(schema *jsonschema.Schema, cat Category, name string, params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return errors.Validation(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("component %s/%s params are not serializable: %v", cat, name, err))
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return errors.Internal("decode component params", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return errors.Validation(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("component %s/%s config invalid: %v", cat, name, err))
	}
	return nil
}

func implementsCategory(cat Category, instance any) bool {
	switch cat {
	case CategoryParser:
		_, ok := instance.(parser.Parser)
		return ok
	case CategoryChunker:
		_, ok := instance.(chunker.Chunker)
		return ok
	case CategoryEmbedder:
		_, ok := instance.(embed.Embedder)
		return ok
	case CategoryIndexer:
		_, ok := instance.(indexer.Indexer)
		return ok
	case CategorySearcher:
		_, ok := instance.(searcher.Searcher)
		return ok
	case CategoryOptimizer:
		_, ok := instance.(optimizer.Optimizer)
		return ok
	}
	return false
}

// Param readers tolerate the numeric types both JSON decoding and Go
// literals produce.

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return fallback
}

func boolParam(params map[string]any, key string, fallback bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return fallback
}

func intParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func floatParam(params map[string]any, key string, fallback float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}

func stringSliceParam(params map[string]any, key string) []string {
	raw, ok := params[key].([]any)
	if !ok {
		if direct, ok := params[key].([]string); ok {
			return direct
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
