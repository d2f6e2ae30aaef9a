// Package llmtext pulls structured fragments out of raw model output.
// Small local models routinely wrap JSON in markdown fences or emit tool
// calls as plain text, so everything here is best-effort and returns ok=false
// rather than erroring.
package llmtext

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ExtractCode returns the first fenced code block for the given language
// (e.g. "python"), or "" if none is present. An empty lang matches any fence.
func ExtractCode(text, lang string) string {
	marker := "```" + lang
	search := text
	for {
		idx := strings.Index(search, marker)
		if idx < 0 {
			return ""
		}
		rest := search[idx+len(marker):]
		// fence language must end at a newline, otherwise "```py" would match "```python"
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			return ""
		}
		if lang != "" && strings.TrimSpace(rest[:nl]) != "" {
			// a longer tag such as "```python3"; keep looking
			search = rest
			continue
		}
		body := rest[nl+1:]
		end := strings.Index(body, "```")
		if end < 0 {
			return ""
		}
		return strings.TrimSpace(body[:end])
	}
}

// ExtractJSON returns the first valid JSON object found in text: the whole
// string, a ```json fence, or an object embedded in prose.
func ExtractJSON(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if gjson.Valid(trimmed) && strings.HasPrefix(trimmed, "{") {
		return trimmed, true
	}

	if fenced := ExtractCode(text, "json"); fenced != "" && gjson.Valid(fenced) {
		return fenced, true
	}
	if fenced := ExtractCode(text, ""); fenced != "" {
		f := strings.TrimSpace(fenced)
		if strings.HasPrefix(f, "{") && gjson.Valid(f) {
			return f, true
		}
	}

	// scan for a balanced object embedded in prose
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if candidate, ok := balancedObject(text[start:]); ok && gjson.Valid(candidate) {
			return candidate, true
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return "", false
}

// balancedObject returns the shortest brace-balanced prefix of s.
func balancedObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[:i+1], true
				}
			}
		}
	}
	return "", false
}

// InlineCall is a tool invocation a model emitted as text instead of a native
// tool call.
type InlineCall struct {
	Name      string
	Arguments string // JSON object
}

// InlineToolCall detects a {"tool_name": ..., "arguments": {...}} payload in
// assistant text and returns it.
func InlineToolCall(text string) (InlineCall, bool) {
	obj, ok := ExtractJSON(text)
	if !ok {
		return InlineCall{}, false
	}

	name := gjson.Get(obj, "tool_name")
	if !name.Exists() {
		name = gjson.Get(obj, "tool")
	}
	if !name.Exists() || name.String() == "" {
		return InlineCall{}, false
	}

	args := gjson.Get(obj, "arguments")
	argJSON := "{}"
	if args.Exists() && args.IsObject() {
		argJSON = args.Raw
	}
	return InlineCall{Name: name.String(), Arguments: argJSON}, true
}
