package runtime

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnsupported is returned by Lookup for language tags with no recipe.
var ErrUnsupported = errors.New("unsupported language")

// Registry is an immutable tag → recipe mapping. Construct it once at
// startup and pass it to the dispatcher; it is safe for concurrent reads.
type Registry struct {
	recipes map[string]Recipe
}

// New builds a registry from the given recipes, validating each one.
func New(recipes []Recipe) (*Registry, error) {
	m := make(map[string]Recipe, len(recipes))
	for _, r := range recipes {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := m[r.Tag]; dup {
			return nil, fmt.Errorf("duplicate recipe for %q", r.Tag)
		}
		m[r.Tag] = r
	}
	return &Registry{recipes: m}, nil
}

// Default returns a registry with the built-in language set. The toolchains
// are resolved via PATH at run time; a missing one surfaces as a launch
// failure, not a registry error.
func Default() *Registry {
	reg, err := New([]Recipe{
		{Tag: "python", Extension: "py", Run: []string{"python3", "{file}"}},
		{Tag: "javascript", Extension: "js", Run: []string{"node", "{file}"}},
		{Tag: "java", Extension: "java",
			Compile: []string{"javac", "{file}"},
			Run:     []string{"java", "-cp", "{dir}", "{stem}"}},
		{Tag: "c", Extension: "c",
			Compile: []string{"gcc", "{file}", "-o", "{binary}"},
			Run:     []string{"{binary}"}},
		{Tag: "cpp", Extension: "cpp",
			Compile: []string{"g++", "{file}", "-o", "{binary}"},
			Run:     []string{"{binary}"}},
		{Tag: "go", Extension: "go", Run: []string{"go", "run", "{file}"}},
		{Tag: "rust", Extension: "rs",
			Compile: []string{"rustc", "{file}", "-o", "{binary}"},
			Run:     []string{"{binary}"}},
		{Tag: "bash", Extension: "sh", Run: []string{"bash", "{file}"}},
	})
	if err != nil {
		// Built-in recipes are validated by tests; a failure here is a
		// programming error.
		panic(err)
	}
	return reg
}

// Lookup returns the recipe for a language tag.
func (reg *Registry) Lookup(tag string) (Recipe, error) {
	r, ok := reg.recipes[tag]
	if !ok {
		return Recipe{}, fmt.Errorf("%w: %s", ErrUnsupported, tag)
	}
	return r, nil
}

// Tags returns the supported language tags in sorted order.
func (reg *Registry) Tags() []string {
	tags := make([]string, 0, len(reg.recipes))
	for tag := range reg.recipes {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
