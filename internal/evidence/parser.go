package evidence

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// #region patterns
var (
	entryHeaderRE = regexp.MustCompile(`(?m)^## Evidence Entry #(\d+):[ \t]*(.*)$`)
	promptRE      = regexp.MustCompile(`(?s)### Prompt Input\n` + "```" + `[^\n]*\n(.*?)\n` + "```")
	outputRE      = regexp.MustCompile(`(?s)### Raw Data Output\n` + "```" + `[^\n]*\n(.*?)\n` + "```")
	sourceRE      = regexp.MustCompile(`<!--\s*source:\s*([^-]+?)\s*-->`)
)

// #endregion patterns

// #region parse
// ParseEntries extracts typed entries from raw evidence log content.
//
// Entries are discovered by their header line regardless of surrounding
// separators; the body of an entry runs until the next header or end of
// content. Malformed or missing sections yield empty strings rather than
// aborting the parse, so one corrupt entry never hides the rest of the log.
func ParseEntries(content string) []Entry {
	headers := entryHeaderRE.FindAllStringSubmatchIndex(content, -1)
	entries := make([]Entry, 0, len(headers))

	for i, h := range headers {
		num, err := strconv.Atoi(content[h[2]:h[3]])
		if err != nil {
			continue
		}
		timestamp := strings.TrimSpace(content[h[4]:h[5]])

		bodyStart := h[1]
		bodyEnd := len(content)
		if i+1 < len(headers) {
			bodyEnd = headers[i+1][0]
		}
		body := content[bodyStart:bodyEnd]

		entries = append(entries, Entry{
			EntryNumber: num,
			Timestamp:   timestamp,
			PromptInput: extractSection(body, promptRE),
			RawOutput:   extractSection(body, outputRE),
			Source:      extractSource(body),
		})
	}

	return entries
}

// #endregion parse

// #region helpers
// extractSection pulls the fenced block under a known sub-header.
func extractSection(body string, re *regexp.Regexp) string {
	m := re.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extractSource reads the inline source annotation, defaulting to user.
func extractSource(body string) string {
	m := sourceRE.FindStringSubmatch(body)
	if m == nil {
		return SourceUser
	}
	src := strings.TrimSpace(m[1])
	switch src {
	case SourceUser, SourceWorker, SourceSystem:
		return src
	}
	return SourceUser
}

// ContextLabelFromPath derives a context label from an evidence log path,
// e.g. "evidence/database-performance.md" -> "database-performance".
func ContextLabelFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// #endregion helpers
