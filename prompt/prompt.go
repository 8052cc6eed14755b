// Package prompt renders the workflow's prompt templates and runs them
// against a chat model.
//
// Each template file defines a "user" template and, optionally, a "system"
// template:
//
//	{{define "system"}}You categorize customer emails.{{end}}
//	{{define "user"}}EMAIL CONTENT: {{.initial_email}}{{end}}
//
// Referencing a variable that was not supplied is an error, so a renamed
// state field fails loudly instead of producing an empty prompt.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/abdulmalikadeyemo/email-assistant/graph/model"
)

// ID names a prompt template. It is the template file name without the
// .tmpl extension.
type ID string

// Prompts used by the email reply workflow.
const (
	Categorize     ID = "categorize"
	ResearchRouter ID = "research_router"
	RAGQuestions   ID = "rag_questions"
	RAGAnswer      ID = "rag_answer"
	Draft          ID = "draft"
	Analysis       ID = "analysis"
	RewriteRouter  ID = "rewrite_router"
	Rewrite        ID = "rewrite"
)

//go:embed templates/*.tmpl
var embedded embed.FS

const (
	systemTemplate = "system"
	userTemplate   = "user"
)

// Set is a parsed collection of prompt templates. It is immutable and safe
// for concurrent use.
type Set struct {
	templates map[ID]*template.Template
}

var defaultSet = sync.OnceValues(func() (*Set, error) {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, err
	}
	return Load(sub)
})

// Default returns the built-in prompt set.
func Default() (*Set, error) {
	return defaultSet()
}

// Load parses every *.tmpl file at the root of fsys.
func Load(fsys fs.FS) (*Set, error) {
	files, err := fs.Glob(fsys, "*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no *.tmpl files found")
	}

	s := &Set{templates: make(map[ID]*template.Template, len(files))}
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		id := ID(strings.TrimSuffix(path.Base(file), ".tmpl"))
		t, err := template.New(string(id)).
			Funcs(funcs).
			Option("missingkey=error").
			Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		if t.Lookup(userTemplate) == nil {
			return nil, fmt.Errorf("%s: missing {{define %q}}", file, userTemplate)
		}
		s.templates[id] = t
	}
	return s, nil
}

// Override returns a set holding s's templates replaced by, or extended
// with, the templates of other.
func (s *Set) Override(other *Set) *Set {
	out := &Set{templates: make(map[ID]*template.Template, len(s.templates))}
	for id, t := range s.templates {
		out.templates[id] = t
	}
	if other != nil {
		for id, t := range other.templates {
			out.templates[id] = t
		}
	}
	return out
}

// Has reports whether the set holds id.
func (s *Set) Has(id ID) bool {
	_, ok := s.templates[id]
	return ok
}

// IDs returns the template IDs in the set, sorted.
func (s *Set) IDs() []ID {
	out := make([]ID, 0, len(s.templates))
	for id := range s.templates {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Render executes template id with vars and returns the messages to send:
// a system message when the template defines one, then the user message.
func (s *Set) Render(id ID, vars map[string]any) ([]model.Message, error) {
	t, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("unknown prompt template %q", id)
	}

	var messages []model.Message
	if t.Lookup(systemTemplate) != nil {
		text, err := execute(t, systemTemplate, vars)
		if err != nil {
			return nil, err
		}
		if text != "" {
			messages = append(messages, model.Message{Role: model.RoleSystem, Content: text})
		}
	}

	text, err := execute(t, userTemplate, vars)
	if err != nil {
		return nil, err
	}
	return append(messages, model.Message{Role: model.RoleUser, Content: text}), nil
}

func execute(t *template.Template, name string, vars map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, vars); err != nil {
		return "", fmt.Errorf("render %s/%s: %w", t.Name(), name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

var funcs = template.FuncMap{
	"lines": lines,
}

// lines renders a list one item per line. Strings pass through unchanged.
func lines(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []string:
		return strings.Join(x, "\n")
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, "\n")
	default:
		return fmt.Sprint(v)
	}
}
