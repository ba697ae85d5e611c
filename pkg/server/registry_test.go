package server

import (
	"fmt"
	"slices"
	"sync"
	"testing"

	P "github.com/cfoust/spheres/pkg/protocol"
	"github.com/cfoust/spheres/pkg/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueClientIDConcurrent(t *testing.T) {
	const workers = 100
	registry := NewRegistry()

	var (
		wait  sync.WaitGroup
		mutex sync.Mutex
		ids   []P.ClientID
	)
	for i := 0; i < workers; i++ {
		wait.Add(1)
		go func() {
			defer wait.Done()
			id := registry.IssueClientID()
			mutex.Lock()
			ids = append(ids, id)
			mutex.Unlock()
		}()
	}
	wait.Wait()

	slices.Sort(ids)
	expected := make([]P.ClientID, workers)
	for i := range expected {
		expected[i] = P.ClientID(i + 1)
	}
	assert.Equal(t, expected, ids)
	assert.Equal(t, P.ClientID(workers+1), registry.IssueClientID())
}

func TestAdmitConcurrent(t *testing.T) {
	const workers = 50
	registry := NewRegistry()

	var wait sync.WaitGroup
	for i := 0; i < workers; i++ {
		wait.Add(1)
		go func(i int) {
			defer wait.Done()
			registry.Admit(transport.Address(fmt.Sprintf("peer-%d", i)))
		}(i)
	}
	wait.Wait()

	require.Equal(t, workers, registry.Count())

	seen := make(map[P.ClientID]bool)
	for i := 0; i < workers; i++ {
		peer, ok := registry.Lookup(transport.Address(fmt.Sprintf("peer-%d", i)))
		require.True(t, ok)
		assert.False(t, seen[peer.ID], "id %d issued twice", peer.ID)
		assert.LessOrEqual(t, peer.ID, P.ClientID(workers))
		seen[peer.ID] = true
	}
}
