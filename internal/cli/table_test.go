package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRenderTable(t *testing.T) {
	t.Parallel()

	out := RenderTable(
		[]string{"Group", "Label", "Start"},
		[][]string{{"1", "Single Kill", "5.000s"}, {"2"}},
		[]Alignment{AlignRight, AlignLeft, AlignRight},
	)

	assert.Contains(t, out, "GROUP")
	assert.Contains(t, out, "Single Kill")
	assert.Contains(t, out, "5.000s")
	assert.True(t, strings.HasPrefix(out, "╭"), "rounded style expected")
	assert.Len(t, strings.Split(out, "\n"), 6)
}

func TestRenderTableNoHeaders(t *testing.T) {
	t.Parallel()
	assert.Empty(t, RenderTable(nil, [][]string{{"x"}}, nil))
}

func TestSeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0.000s"},
		{12500 * time.Millisecond, "12.500s"},
		{61 * time.Second, "61.000s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Seconds(tt.in))
	}
}
