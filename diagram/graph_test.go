package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func buildGraph() *Graph {
	g := NewGraph("Shop")
	g.Direction = "TB"
	g.GraphAttr["bgcolor"] = "white"

	web := &Node{ID: "web", Label: "Web \"edge\"", Class: NodeClass{Name: "EC2", Color: "#FF9900"}}
	g.root.add(web)
	grp := g.root.NewGroup("Data", "LR", map[string]string{"fontsize": "14"})
	db := &Node{ID: "db", Label: "Primary\nDB", Icon: "/icons/db.png"}
	grp.add(db)
	_, _ = g.connect(web, db, true, false, map[string]string{"label": "SQL"})
	return g
}

func TestGraph_DOT(t *testing.T) {
	dot := string(buildGraph().DOT())

	assert.True(t, strings.HasPrefix(dot, "digraph \"Shop\" {\n"))
	assert.True(t, strings.HasSuffix(dot, "}\n"))
	assert.Contains(t, dot, `"bgcolor"="white"`)
	assert.Contains(t, dot, `"rankdir"="TB"`)
	assert.Contains(t, dot, `"label"="Shop"`)
	assert.Contains(t, dot, `"label"="Web \"edge\""`)
	assert.Contains(t, dot, `"color"="#FF9900"`)
	assert.Contains(t, dot, `subgraph "cluster_1" {`)
	assert.Contains(t, dot, `"bgcolor"="#E5F5FD"`)
	assert.Contains(t, dot, `"fontsize"="14"`)
	assert.Contains(t, dot, `"image"="/icons/db.png"`)
	assert.Contains(t, dot, `"label"="Primary\nDB"`)
	assert.Contains(t, dot, `"height"="2.3"`)
	assert.Contains(t, dot, `"shape"="none"`)
	assert.Contains(t, dot, `"web" -> "db" ["dir"="forward" "label"="SQL"]`)
}

func TestGraph_DOTDeterministic(t *testing.T) {
	assert.Equal(t, buildGraph().DOT(), buildGraph().DOT())
}

func TestGraph_Strict(t *testing.T) {
	g := NewGraph("s")
	g.Strict = true
	assert.True(t, strings.HasPrefix(string(g.DOT()), "strict digraph"))
}

func TestGraph_EmptyNodeLabel(t *testing.T) {
	g := NewGraph("")
	g.root.add(&Node{ID: "n"})
	dot := string(g.DOT())
	assert.Contains(t, dot, `"n" ["label"=""]`)
}

func TestLink_Dir(t *testing.T) {
	assert.Equal(t, "forward", (&Link{Forward: true}).Dir())
	assert.Equal(t, "back", (&Link{Reverse: true}).Dir())
	assert.Equal(t, "both", (&Link{Forward: true, Reverse: true}).Dir())
	assert.Equal(t, "none", (&Link{}).Dir())
}

// Property: 任意标签经过 quoteID 后都是单个闭合的 DOT 字符串
func TestProperty_QuoteIDClosed(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := rapid.String().Draw(rt, "s")
		q := quoteID(s)
		if !strings.HasPrefix(q, `"`) || !strings.HasSuffix(q, `"`) {
			rt.Fatalf("not quoted: %s", q)
		}
		body := q[1 : len(q)-1]
		if strings.ContainsAny(body, "\n\r") {
			rt.Fatalf("raw newline in %q", q)
		}
		// 去掉转义后不应再有裸引号
		unescaped := strings.ReplaceAll(strings.ReplaceAll(body, `\\`, ""), `\"`, "")
		if strings.Contains(unescaped, `"`) {
			rt.Fatalf("unescaped quote in %q", q)
		}
	})
}
