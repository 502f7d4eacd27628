package core

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/tinker/pkg/models"
)

const frontMatterDelimiter = "---"

// ParseMarkdownMeta extracts the YAML front-matter and heading outline of a
// markdown document. Invalid YAML leaves FrontMatter empty but still reports
// the block's extent.
func ParseMarkdownMeta(content string) *models.DocumentMeta {
	meta := &models.DocumentMeta{FrontMatter: map[string]any{}}
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	body := lines
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == frontMatterDelimiter {
		for i := 1; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) != frontMatterDelimiter {
				continue
			}
			raw := strings.Join(lines[1:i], "\n")
			var fm map[string]any
			if err := yaml.Unmarshal([]byte(raw), &fm); err == nil && fm != nil {
				meta.FrontMatter = fm
			}
			meta.FrontMatterLines = i + 1
			body = lines[i+1:]
			break
		}
	}

	inFence := false
	for _, line := range body {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if h, ok := parseHeading(line); ok && h.text != "" {
			meta.Headings = append(meta.Headings, h.text)
		}
	}
	return meta
}
