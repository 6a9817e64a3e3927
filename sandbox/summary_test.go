package sandbox

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestSummarize(t *testing.T) {
	m := newPathMasker("/srv/diagramgate/out", "/srv/icons")

	got := summarize("line 3: cannot open /srv/diagramgate/out/x.png and /etc/secret/key.pem\ngoroutine 1 [running]:\nmain.main()", m, 512)
	assert.Equal(t, "line 3: cannot open <output>/x.png and <path>", got)

	got = summarize("icon /srv/icons/aws/compute/ec2.png missing", m, 512)
	assert.Equal(t, "icon <icons>/aws/compute/ec2.png missing", got)

	long := summarize(strings.Repeat("é", 400), m, 64)
	assert.LessOrEqual(t, len(long), 64)
	assert.True(t, utf8.ValidString(long))
	assert.True(t, strings.HasSuffix(long, "..."))
}

// Property: 摘要长度不超过上限且始终是合法的 UTF-8
func TestProperty_SummaryBounded(t *testing.T) {
	m := newPathMasker(t.TempDir(), "")
	rapid.Check(t, func(rt *rapid.T) {
		msg := rapid.String().Draw(rt, "msg")
		limit := rapid.IntRange(8, 600).Draw(rt, "limit")
		got := summarize(msg, m, limit)
		if len(got) > limit {
			rt.Fatalf("len %d > %d", len(got), limit)
		}
		if utf8.ValidString(msg) && !utf8.ValidString(got) {
			rt.Fatalf("invalid utf-8: %q", got)
		}
	})
}
