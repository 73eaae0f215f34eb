package marks

import (
	"testing"

	"github.com/ibeckermayer/feedsieve/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestStampAndLookup(t *testing.T) {
	m := New(&SequenceIDs{Prefix: "t"})
	a, b := &html.Node{Type: html.ElementNode}, &html.Node{Type: html.ElementNode}

	idA := m.StampID(a)
	idB := m.StampID(b)
	assert.Equal(t, "t1", idA)
	assert.Equal(t, "t2", idB)

	got, ok := m.Lookup(idA)
	require.True(t, ok)
	assert.Same(t, a, got)

	restamped := m.StampID(a)
	_, ok = m.Lookup(idA)
	assert.False(t, ok, "old id should no longer resolve")
	assert.Equal(t, restamped, m.CorrelationID(a))
}

func TestProcessedMarker(t *testing.T) {
	m := New(&SequenceIDs{})
	n := &html.Node{Type: html.ElementNode}

	assert.False(t, m.IsProcessed(n))
	assert.True(t, m.MarkProcessed(n))
	assert.False(t, m.MarkProcessed(n))
	assert.True(t, m.IsProcessed(n))
}

func TestDetachKeepsProcessedState(t *testing.T) {
	m := New(&SequenceIDs{})
	parent := &html.Node{Type: html.ElementNode}
	child := &html.Node{Type: html.ElementNode}
	parent.AppendChild(child)

	id := m.StampID(child)
	m.MarkProcessed(child)
	m.SetAdjacency(child, types.Adjacency{HasDescendant: true})
	m.SetAdjacency(parent, types.Adjacency{HasAncestor: true})

	assert.Equal(t, 2, m.Detach(parent))
	assert.Equal(t, 1, m.Len(), "only the processed child keeps an entry")
	_, ok := m.Lookup(id)
	assert.False(t, ok, "detached posts do not resolve")
	_, ok = m.CachedAdjacency(child)
	assert.False(t, ok)
	assert.True(t, m.IsProcessed(child))

	assert.Zero(t, m.Attach(parent))
	got, ok := m.Lookup(id)
	require.True(t, ok)
	assert.Same(t, child, got)
	assert.False(t, m.MarkProcessed(child))
}

func TestIdentityCarriesToFreshNode(t *testing.T) {
	key := func(n *html.Node) string {
		for _, a := range n.Attr {
			if a.Key == "data-key" {
				return a.Val
			}
		}
		return ""
	}
	m := New(&SequenceIDs{Prefix: "k"}, WithIdentity(key))
	keyed := func(k string) *html.Node {
		return &html.Node{Type: html.ElementNode, Attr: []html.Attribute{{Key: "data-key", Val: k}}}
	}

	old := keyed("n1")
	id := m.StampID(old)
	m.MarkProcessed(old)
	m.Detach(old)
	assert.Zero(t, m.Len())

	other := keyed("n2")
	assert.Zero(t, m.Attach(other))
	assert.False(t, m.IsProcessed(other))

	fresh := keyed("n1")
	assert.Equal(t, 1, m.Attach(fresh))
	assert.True(t, m.IsProcessed(fresh))
	assert.Equal(t, id, m.CorrelationID(fresh))
	got, ok := m.Lookup(id)
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestSnowflakeIDsAreUnique(t *testing.T) {
	ids, err := NewSnowflakeIDs(1)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 5000; i++ {
		id := ids.Next()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}

	_, err = NewSnowflakeIDs(5000)
	assert.Error(t, err)
}
