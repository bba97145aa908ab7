package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/winspan/blocksync/internal/domains"
)

func TestBlockSet(t *testing.T) {
	denied := domains.NewSet("a", "b", "c")
	static := domains.NewSet("a")
	resolved := domains.NewSet("a", "b", "x")
	allowed := domains.NewSet("x")

	// c is denied but was never resolved, so it must not appear
	assert.Equal(t, domains.NewSet("b"), BlockSet(denied, static, resolved, allowed))
}

func TestBlockSetEmptyResolved(t *testing.T) {
	denied := domains.NewSet("a", "b")
	static := domains.NewSet("a")
	allowed := domains.NewSet("b")

	assert.Empty(t, BlockSet(denied, static, domains.Set{}, allowed))
	assert.Empty(t, BlockSet(denied, static, nil, allowed))
}

func TestBlockSetAllowedWins(t *testing.T) {
	denied := domains.NewSet("ads.example.com")
	resolved := domains.NewSet("ads.example.com")
	allowed := domains.NewSet("ads.example.com")

	assert.Empty(t, BlockSet(denied, domains.Set{}, resolved, allowed))
}

func TestBlockSetAlreadyStatic(t *testing.T) {
	denied := domains.NewSet("ads.example.com")
	static := domains.NewSet("ads.example.com")
	resolved := domains.NewSet("ads.example.com")

	assert.Empty(t, BlockSet(denied, static, resolved, domains.Set{}))
}

func TestBlockSetDeterministic(t *testing.T) {
	denied := domains.NewSet("a", "b", "c", "d")
	static := domains.NewSet("b")
	resolved := domains.NewSet("a", "b", "c", "e")
	allowed := domains.NewSet("c")

	want := domains.NewSet("a")
	for i := 0; i < 10; i++ {
		assert.Equal(t, want, BlockSet(denied, static, resolved, allowed))
	}
}
