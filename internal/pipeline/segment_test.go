package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Segment
	}{
		{
			name: "no pipe is one trimmed segment",
			in:   "  p/echo hello   world ",
			want: []Segment{{Raw: "p/echo hello   world", Name: "echo"}},
		},
		{
			name: "escaped pipe survives, real pipe splits",
			in:   `a \| b | c`,
			want: []Segment{{Raw: "a | b", Name: "a"}, {Raw: "c", Name: "c"}},
		},
		{
			name: "three segments with mixed prefixes",
			in:   "p/echo hi | p/upper|reverse",
			want: []Segment{
				{Raw: "p/echo hi", Name: "echo"},
				{Raw: "p/upper", Name: "upper"},
				{Raw: "reverse", Name: "reverse"},
			},
		},
		{
			name: "trailing pipe keeps an empty segment",
			in:   "cmd1 | ",
			want: []Segment{{Raw: "cmd1", Name: "cmd1"}, {Raw: "", Name: ""}},
		},
		{
			name: "empty input",
			in:   "",
			want: []Segment{{Raw: "", Name: ""}},
		},
		{
			name: "consecutive pipes",
			in:   "a||b",
			want: []Segment{{Raw: "a", Name: "a"}, {Raw: "", Name: ""}, {Raw: "b", Name: "b"}},
		},
		{
			name: "multibyte text around pipes",
			in:   "p/echo héllo ✨ | p/upper",
			want: []Segment{{Raw: "p/echo héllo ✨", Name: "echo"}, {Raw: "p/upper", Name: "upper"}},
		},
		{
			name: "prefix alone yields empty name",
			in:   "p/ echo",
			want: []Segment{{Raw: "p/ echo", Name: ""}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.in, "p/")
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Split(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestSplit_NoPipeAlwaysOneSegment(t *testing.T) {
	for _, in := range []string{"x", "  spaced out  ", `escaped \| only`, "p/help", "\tтабы\n"} {
		segs := Split(in, "p/")
		assert.Len(t, segs, 1, in)
	}
}

func TestSplit_Idempotent(t *testing.T) {
	in := `p/echo a \| b | p/upper | | p/count`
	first := Split(in, "p/")
	second := Split(in, "p/")
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("Split is not pure:\n%s", diff)
	}
}

func TestStripTokens(t *testing.T) {
	assert.Equal(t, "b  c", stripTokens("a b  c", 1))
	assert.Equal(t, "c", stripTokens("  a   b c ", 2))
	assert.Equal(t, "", stripTokens("a", 1))
	assert.Equal(t, "", stripTokens("a b", 3))
	assert.Equal(t, "a b", stripTokens(" a b ", 0))
}

func TestJoinSegmentsAndPrefix(t *testing.T) {
	segs := Split("p/alias x p/echo hi | p/upper", "p/")
	assert.Equal(t, "p/alias x p/echo hi | p/upper", joinSegments(segs))
	assert.Equal(t, "p/upper", withPrefix("upper", "p/"))
	assert.Equal(t, "p/upper", withPrefix("p/upper", "p/"))
}

func TestJoinSegments_EscapesInnerPipes(t *testing.T) {
	in := `p/alias set x p/echo a \| b | p/upper`
	segs := Split(in, "p/")
	require.Len(t, segs, 2)
	assert.Equal(t, "p/alias set x p/echo a | b", segs[0].Raw)

	joined := joinSegments(segs)
	assert.Equal(t, in, joined)
	if diff := cmp.Diff(segs, Split(joined, "p/")); diff != "" {
		t.Fatalf("joined text splits differently:\n%s", diff)
	}
}
