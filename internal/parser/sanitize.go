package parser

import (
	"encoding/json"

	"github.com/google/shlex"
)

// safeTools pass their input through unchanged; they cannot leak secrets.
var safeTools = map[string]bool{
	"readFile":      true,
	"listDirectory": true,
	"search":        true,
	"grep":          true,
}

// sanitizedTools retain only a narrow, secret-free projection of their input.
var sanitizedTools = map[string]bool{
	"writeFile":  true,
	"editFile":   true,
	"runCommand": true,
	"bash":       true,
}

// SanitizeToolInput implements spec §4.B.5: safe tools pass through, sanitized
// tools retain only "path" or the first command token, unknown tools are
// discarded entirely (empty string, no warning — this is routine filtering,
// not a parse failure).
func SanitizeToolInput(toolName string, rawInput string) string {
	if safeTools[toolName] {
		return rawInput
	}
	if !sanitizedTools[toolName] {
		return ""
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(rawInput), &fields); err != nil {
		return ""
	}

	if path, ok := fields["path"].(string); ok && path != "" {
		out, _ := json.Marshal(map[string]string{"path": path})
		return string(out)
	}

	for _, key := range []string{"command", "cmd"} {
		cmd, ok := fields[key].(string)
		if !ok || cmd == "" {
			continue
		}
		tokens, err := shlex.Split(cmd)
		if err != nil || len(tokens) == 0 {
			continue
		}
		out, _ := json.Marshal(map[string]string{"command": tokens[0]})
		return string(out)
	}

	return ""
}
