// Package runtime maps language tags to launch recipes for the sandbox.
package runtime

import (
	"fmt"
	"regexp"
	"strings"
)

// Recipe describes how to compile and run one language. Recipes are data:
// argv templates with placeholders, no executable logic.
//
// Supported placeholders:
//
//	{file}    absolute path of the written source file
//	{dir}     workspace directory
//	{stem}    source file name without extension
//	{binary}  path for the compiled executable
type Recipe struct {
	Tag       string   // language identifier, e.g. "python"
	Extension string   // source file extension without the dot
	Compile   []string // optional compile argv template
	Run       []string // run argv template
}

var placeholderRe = regexp.MustCompile(`\{[^{}]*\}`)

var knownPlaceholders = map[string]bool{
	"{file}":   true,
	"{dir}":    true,
	"{stem}":   true,
	"{binary}": true,
}

// Validate checks the recipe's shape and rejects unknown template tokens.
// Called at registry construction so a bad recipe never reaches the runner.
func (r Recipe) Validate() error {
	if r.Tag == "" {
		return fmt.Errorf("recipe has empty tag")
	}
	if r.Extension == "" || strings.HasPrefix(r.Extension, ".") {
		return fmt.Errorf("recipe %q: extension must be non-empty without a leading dot", r.Tag)
	}
	if len(r.Run) == 0 {
		return fmt.Errorf("recipe %q: run command is empty", r.Tag)
	}
	for _, argv := range [][]string{r.Compile, r.Run} {
		for _, token := range argv {
			for _, ph := range placeholderRe.FindAllString(token, -1) {
				if !knownPlaceholders[ph] {
					return fmt.Errorf("recipe %q: unknown placeholder %s", r.Tag, ph)
				}
			}
		}
	}
	return nil
}

// Expand substitutes placeholders in an argv template.
func Expand(argv []string, file, dir, stem, binary string) []string {
	repl := strings.NewReplacer(
		"{file}", file,
		"{dir}", dir,
		"{stem}", stem,
		"{binary}", binary,
	)
	out := make([]string, len(argv))
	for i, token := range argv {
		out[i] = repl.Replace(token)
	}
	return out
}
