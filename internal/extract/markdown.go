package extract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// extractMarkdown keeps the readable text of a markdown document, one line
// per block, dropping markup and link targets.
func extractMarkdown(data []byte) (string, error) {
	src, err := extractText(data)
	if err != nil {
		return "", err
	}
	source := []byte(src)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var (
		lines []string
		cur   strings.Builder
	)
	flush := func() {
		line := strings.TrimSpace(cur.String())
		cur.Reset()
		if line != "" {
			lines = append(lines, line)
		}
	}
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				cur.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					cur.WriteString(" ")
				}
			}
		case *ast.String:
			if entering {
				cur.Write(node.Value)
			}
		case *ast.CodeSpan:
			if entering {
				for c := node.FirstChild(); c != nil; c = c.NextSibling() {
					if t, ok := c.(*ast.Text); ok {
						cur.Write(t.Segment.Value(source))
					}
				}
				return ast.WalkSkipChildren, nil
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				flush()
				block := n.Lines()
				for i := 0; i < block.Len(); i++ {
					seg := block.At(i)
					cur.Write(seg.Value(source))
				}
				flush()
				return ast.WalkSkipChildren, nil
			}
		case *ast.Heading, *ast.Paragraph, *ast.TextBlock, *ast.ListItem, *ast.Blockquote:
			flush()
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	flush()
	return strings.Join(lines, "\n"), nil
}
