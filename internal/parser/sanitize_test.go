package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeToolInput_SafeToolPassesThroughUnchanged(t *testing.T) {
	raw := `{"path":"a.ts","extra":"whatever secret text"}`
	assert.Equal(t, raw, SanitizeToolInput("readFile", raw))
}

func TestSanitizeToolInput_SanitizedToolKeepsOnlyPath(t *testing.T) {
	raw := `{"path":"a.ts","content":"sk-ant-REDACTED"}`
	got := SanitizeToolInput("writeFile", raw)
	assert.JSONEq(t, `{"path":"a.ts"}`, got)
}

func TestSanitizeToolInput_SanitizedToolKeepsOnlyFirstCommandToken(t *testing.T) {
	raw := `{"command":"curl -H 'Authorization: Bearer sk-secret' https://example.com"}`
	got := SanitizeToolInput("bash", raw)
	assert.JSONEq(t, `{"command":"curl"}`, got)
}

func TestSanitizeToolInput_UnknownToolReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", SanitizeToolInput("someFutureTool", `{"path":"a.ts"}`))
}

func TestSanitizeToolInput_SanitizedToolWithNoPathOrCommandReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", SanitizeToolInput("editFile", `{"other":"field"}`))
}

func TestSanitizeToolInput_MalformedJSONReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", SanitizeToolInput("writeFile", `not json`))
}
