package sequence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerator_Next(t *testing.T) {
	g := New()

	assert.Equal(t, int64(1), g.Next("route"))
	assert.Equal(t, "route2", g.NextName("route"))
	assert.Equal(t, int64(1), g.Next("context"), "names are independent")
	assert.Equal(t, int64(2), g.Current("route"))
}

func TestGenerator_Reset(t *testing.T) {
	g := New()
	g.Next("route")
	g.Next("route")

	g.Reset("route", 10)

	assert.Equal(t, "route11", g.NextName("route"))
}

func TestGenerator_Concurrent(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Next("n")
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), g.Current("n"))
}

func TestGlobal(t *testing.T) {
	Reset("global-test", 0)
	assert.Equal(t, "global-test1", NextName("global-test"))
	assert.Equal(t, int64(2), Next("global-test"))
}
