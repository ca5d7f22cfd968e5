package rewritekey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_CollapsesIdenticalContent(t *testing.T) {
	a := normalize("package main\nfunc main() {}\n")
	b := normalize("package main\nfunc main() {}\n")
	assert.Equal(t, a, b)
}

func TestNormalize_DiffersOnContentChange(t *testing.T) {
	a := normalize("line one\n")
	b := normalize("line two\n")
	assert.NotEqual(t, a, b)
}

func TestNormalize_CollapsesWhitespaceOnlyReformatting(t *testing.T) {
	reindented := normalize("func main() {\n    fmt.Println(\"hi\")\n}\n")
	reflowed := normalize("func main() {\n\tfmt.Println(\"hi\")\n}")
	assert.Equal(t, reindented, reflowed, "whitespace-only reformatting must hash identically")
}

func TestNormalize_StillDistinguishesRealContentChange(t *testing.T) {
	original := normalize("func main() {\n    fmt.Println(\"hi\")\n}\n")
	edited := normalize("func main() {\n    fmt.Println(\"bye\")\n}\n")
	assert.NotEqual(t, original, edited)
}

func TestAlgorithm_IsStableIdentifier(t *testing.T) {
	assert.Equal(t, "narrative-content-diff-sha256/1", Algorithm)
}
