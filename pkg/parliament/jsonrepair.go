package parliament

import (
	"regexp"
	"strings"
)

var (
	fencedBlockRe   = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
)

// RepairJSON cleans the common failure modes of model-produced JSON:
// markdown fences around the object, prose before or after the braces,
// and trailing commas. It does not attempt to fix truncated output.
func RepairJSON(content string) string {
	content = strings.TrimSpace(content)

	if m := fencedBlockRe.FindStringSubmatch(content); len(m) == 2 {
		content = strings.TrimSpace(m[1])
	}

	if first := strings.Index(content, "{"); first >= 0 {
		if last := strings.LastIndex(content, "}"); last > first {
			content = content[first : last+1]
		}
	}

	return trailingCommaRe.ReplaceAllString(content, "$1")
}
