package parser

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/harrison/conveyor/internal/models"
)

// MarkdownParser parses runbook-style Markdown pipelines: a level-1 heading
// names the pipeline, each `## Step N: <name>` heading starts a step, and
// fenced code blocks within a step section form its script. The code fence
// language selects the shell (sh, bash, powershell, pwsh).
type MarkdownParser struct {
	markdown goldmark.Markdown
}

// NewMarkdownParser creates a new MarkdownParser.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		markdown: goldmark.New(),
	}
}

var stepHeadingRegex = regexp.MustCompile(`^Step\s+(\d+):\s+(.+)$`)

// shellLanguages maps code fence info strings to shell executables.
var shellLanguages = map[string]string{
	"sh":         "sh",
	"bash":       "bash",
	"shell":      "sh",
	"powershell": "powershell",
	"pwsh":       "pwsh",
}

// Parse reads a Markdown runbook and returns a pipeline with a single
// implicit "default" job containing the steps in document order.
func (p *MarkdownParser) Parse(r io.Reader) (*models.Pipeline, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	doc := p.markdown.Parser().Parse(text.NewReader(content))

	pipeline := &models.Pipeline{}
	steps, name, err := p.extractSteps(doc, content)
	if err != nil {
		return nil, fmt.Errorf("failed to extract steps: %w", err)
	}
	pipeline.Name = name

	if len(steps) == 0 {
		return nil, fmt.Errorf("runbook contains no '## Step N:' sections")
	}

	pipeline.Jobs = []models.Job{{ID: "default", Name: "default", Steps: steps}}
	return pipeline, nil
}

// extractSteps walks the document AST collecting step sections. Walk order
// matches document order, so a small state machine over headings and fenced
// code blocks is enough.
func (p *MarkdownParser) extractSteps(doc ast.Node, source []byte) ([]models.Step, string, error) {
	var steps []models.Step
	var pipelineName string
	var current *models.Step
	var script strings.Builder
	var shell string

	flush := func() {
		if current == nil {
			return
		}
		current.Run = strings.TrimRight(script.String(), "\n")
		current.Shell = shell
		steps = append(steps, *current)
		current = nil
		script.Reset()
		shell = ""
	}

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			if node.Level == 1 && pipelineName == "" {
				pipelineName = extractText(node, source)
				return ast.WalkSkipChildren, nil
			}
			if node.Level != 2 {
				return ast.WalkContinue, nil
			}

			flush()

			headingText := extractText(node, source)
			matches := stepHeadingRegex.FindStringSubmatch(headingText)
			if len(matches) == 3 {
				current = &models.Step{Name: strings.TrimSpace(matches[2])}
			}
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock:
			if current == nil {
				return ast.WalkContinue, nil
			}
			if lang, ok := shellLanguages[string(node.Language(source))]; ok && shell == "" {
				shell = lang
			}
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				segment := lines.At(i)
				script.Write(segment.Value(source))
			}
			return ast.WalkSkipChildren, nil
		}

		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, "", err
	}

	flush()

	// Steps without any code block carry no work
	for _, step := range steps {
		if step.Run == "" {
			return nil, "", fmt.Errorf("step %q has no fenced code block", step.Name)
		}
	}

	return steps, pipelineName, nil
}

// extractText collects the text content of a node's direct children.
func extractText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if text, ok := c.(*ast.Text); ok {
			buf.Write(text.Segment.Value(source))
		}
	}
	return buf.String()
}
