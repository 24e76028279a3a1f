package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

// Issue is one schema violation.
type Issue struct {
	Path    string    `json:"path,omitempty"`
	Message string    `json:"message"`
	Pos     token.Pos `json:"-"`
}

// String formats the issue as file:line:col: path: message.
func (i Issue) String() string {
	var b strings.Builder
	if i.Pos.IsValid() {
		fmt.Fprintf(&b, "%s:%d:%d: ", i.Pos.Filename(), i.Pos.Line(), i.Pos.Column())
	}
	if i.Path != "" {
		b.WriteString(i.Path)
		b.WriteString(": ")
	}
	b.WriteString(i.Message)
	return b.String()
}

// ValidationError lists every schema violation in a configuration file.
type ValidationError struct {
	File   string
	Issues []Issue
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	lines := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		lines[i] = is.String()
	}
	return fmt.Sprintf("invalid configuration %s:\n  %s", e.File, strings.Join(lines, "\n  "))
}

// Validate checks YAML configuration bytes against the embedded schema.
func Validate(filename string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return &ValidationError{File: filename, Issues: issuesFrom(filename, err)}
	}
	value := ctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return &ValidationError{File: filename, Issues: issuesFrom(filename, err)}
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{File: filename, Issues: issuesFrom(filename, err)}
	}
	return nil
}

// issuesFrom flattens CUE errors, preferring positions inside the
// configuration file over positions inside the schema.
func issuesFrom(filename string, err error) []Issue {
	var issues []Issue
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		issue := Issue{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
			Pos:     e.Position(),
		}
		for _, p := range append([]token.Pos{e.Position()}, e.InputPositions()...) {
			if p.IsValid() && p.Filename() == filename {
				issue.Pos = p
				break
			}
		}
		issues = append(issues, issue)
	}
	if len(issues) == 0 {
		issues = append(issues, Issue{Message: err.Error()})
	}
	return issues
}
