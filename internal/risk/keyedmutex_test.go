// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package risk

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := newKeyedMutex()
	counters := [2]int{}
	keys := []string{"alice", "bob"}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		for idx, key := range keys {
			wg.Add(1)
			go func(idx int, key string) {
				defer wg.Done()
				unlock := km.Lock(key)
				defer unlock()
				counters[idx]++
			}(idx, key)
		}
	}
	wg.Wait()

	for idx, key := range keys {
		if counters[idx] != 100 {
			t.Errorf("counter for %q = %d, want 100", key, counters[idx])
		}
	}
}
