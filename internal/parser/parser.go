// Package parser turns source files into the plain text the chunker consumes.
package parser

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Document is parsed text with the title found in it, if any.
type Document struct {
	Title string
	Text  string
}

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// ParseFile reads a text or markdown file. Markdown is reduced to its text
// content; the first level-one heading becomes the title.
func ParseFile(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%s is not valid UTF-8 text", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdx":
		return Markdown(raw), nil
	default:
		return &Document{Text: string(raw)}, nil
	}
}

// Markdown extracts the readable text of a markdown document. Block
// elements are separated by blank lines; HTML is dropped.
func Markdown(src []byte) *Document {
	root := md.Parser().Parse(text.NewReader(src))

	w := &textWriter{src: src}
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		return w.visit(n, entering), nil
	})

	return &Document{Title: w.title, Text: strings.TrimSpace(w.buf.String())}
}

type textWriter struct {
	src     []byte
	buf     bytes.Buffer
	title   string
	heading *bytes.Buffer
}

func (w *textWriter) write(b []byte) {
	w.buf.Write(b)
	if w.heading != nil {
		w.heading.Write(b)
	}
}

func (w *textWriter) block() {
	if w.buf.Len() == 0 {
		return
	}
	trimmed := bytes.TrimRight(w.buf.Bytes(), " \t\n")
	w.buf.Truncate(len(trimmed))
	w.buf.WriteString("\n\n")
}

func (w *textWriter) newline() {
	if w.buf.Len() == 0 {
		return
	}
	trimmed := bytes.TrimRight(w.buf.Bytes(), " \t")
	w.buf.Truncate(len(trimmed))
	if !bytes.HasSuffix(trimmed, []byte("\n")) {
		w.buf.WriteString("\n")
	}
}

func (w *textWriter) visit(n ast.Node, entering bool) ast.WalkStatus {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			w.block()
			if node.Level == 1 && w.title == "" {
				w.heading = &bytes.Buffer{}
			}
		} else if w.heading != nil {
			w.title = strings.TrimSpace(w.heading.String())
			w.heading = nil
		}
	case *ast.Paragraph, *ast.Blockquote, *ast.List, *ast.ThematicBreak, *extast.Table:
		if entering {
			w.block()
		}
	case *ast.ListItem, *extast.TableRow, *extast.TableHeader:
		if entering {
			w.newline()
		}
	case *extast.TableCell:
		if entering && node.PreviousSibling() != nil {
			w.buf.WriteString(" | ")
		}
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if entering {
			w.block()
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				w.write(seg.Value(w.src))
			}
		}
		return ast.WalkSkipChildren
	case *ast.HTMLBlock, *ast.RawHTML:
		return ast.WalkSkipChildren
	case *ast.AutoLink:
		if entering {
			w.write(node.Label(w.src))
		}
		return ast.WalkSkipChildren
	case *ast.Text:
		if entering {
			w.write(node.Segment.Value(w.src))
			switch {
			case node.HardLineBreak():
				w.write([]byte("\n"))
			case node.SoftLineBreak():
				w.write([]byte(" "))
			}
		}
	case *ast.String:
		if entering {
			w.write(node.Value)
		}
	}
	return ast.WalkContinue
}
