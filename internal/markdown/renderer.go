package markdown

import (
	"bytes"
	stdhtml "html"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// Renderer converts article bodies to HTML plus a table of contents.
// It is stateless, so a single instance can be shared across requests.
type Renderer struct {
	md goldmark.Markdown
}

func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
			goldmark.WithExtensions(
				extension.GFM,
				extension.Footnote,
			),
		),
	}
}

// Render parses body once and produces both the HTML and the TOC from the
// same AST. Output is never persisted; callers invoke this on detail reads.
func (r *Renderer) Render(body string) (string, string, error) {
	source := []byte(body)
	doc := r.md.Parser().Parse(text.NewReader(source))

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, source, doc); err != nil {
		return "", "", errors.Wrap(err, "render markdown")
	}

	toc, err := buildTOC(doc, source)
	if err != nil {
		return "", "", errors.Wrap(err, "build toc")
	}

	return buf.String(), toc, nil
}

type tocEntry struct {
	level int
	id    string
	title string
}

func buildTOC(doc ast.Node, source []byte) (string, error) {
	entries := make([]tocEntry, 0)
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		id := ""
		if v, found := h.AttributeString("id"); found {
			if b, isBytes := v.([]byte); isBytes {
				id = string(b)
			}
		}
		entries = append(entries, tocEntry{
			level: h.Level,
			id:    id,
			title: string(h.Text(source)),
		})
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return "", err
	}

	if len(entries) == 0 {
		return "", nil
	}

	minLevel := entries[0].level
	for _, e := range entries {
		if e.level < minLevel {
			minLevel = e.level
		}
	}

	var b strings.Builder
	depth := 0
	for _, e := range entries {
		want := e.level - minLevel + 1
		for depth < want {
			b.WriteString("<ul>")
			depth++
		}
		for depth > want {
			b.WriteString("</ul>")
			depth--
		}
		b.WriteString(`<li><a href="#`)
		b.WriteString(stdhtml.EscapeString(e.id))
		b.WriteString(`">`)
		b.WriteString(stdhtml.EscapeString(e.title))
		b.WriteString(`</a></li>`)
	}
	for depth > 0 {
		b.WriteString("</ul>")
		depth--
	}

	return b.String(), nil
}
