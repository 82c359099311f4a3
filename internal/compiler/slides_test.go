package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSlides(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{name: "single", in: "# One\n\ntext\n", want: 1},
		{name: "two", in: "# One\n---\n# Two\n", want: 2},
		{name: "crlf", in: "# One\r\n---\r\n# Two\r\n", want: 2},
		{name: "trailing separator", in: "# One\n---\n", want: 1},
		{name: "separator with trailing space", in: "# One\n---  \n# Two\n", want: 2},
		{name: "fenced backticks", in: "# One\n```\n---\n```\n", want: 1},
		{name: "fenced tildes", in: "# One\n~~~yaml\n---\nkey: v\n~~~\n---\n# Two\n", want: 2},
		{name: "longer rule is not a separator", in: "# One\n----\n# Two\n", want: 1},
		{name: "empty", in: "", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, splitSlides(tt.in), tt.want)
		})
	}
}

func TestSlideIDs(t *testing.T) {
	ids := slideIDs([]string{
		"# Intro\n",
		"no heading\n",
		"## Intro\n",
		"# Über Café\n",
	})
	require.Len(t, ids, 4)
	assert.Equal(t, "intro", ids[0])
	assert.Equal(t, "slide-2", ids[1])
	assert.Equal(t, "intro-2", ids[2])
	assert.Equal(t, "uber-cafe", ids[3])
}

func TestFirstHeading(t *testing.T) {
	assert.Equal(t, "Hello", firstHeading("text\n\n## Hello ##\n"))
	assert.Empty(t, firstHeading("#nospace\n"))
}

func TestFirstHeading_IgnoresFencedCode(t *testing.T) {
	src := "```bash\n# install deps\nnpm ci\n```\n\n## Real\n"
	assert.Equal(t, "Real", firstHeading(src))

	ids := slideIDs([]string{"# One\n", "~~~sh\n# only a comment\n~~~\n"})
	require.Len(t, ids, 2)
	assert.Equal(t, "one", ids[0])
	assert.Equal(t, "slide-2", ids[1])
}
