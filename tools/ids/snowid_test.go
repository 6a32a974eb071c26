package ids

import (
	"sync"
	"testing"
)

func TestGeneratorUniqueUnderConcurrency(t *testing.T) {
	g := NewGenerator(7)
	const workers, per = 8, 2000

	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*per)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, per)
			for i := 0; i < per; i++ {
				local = append(local, g.Next())
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != workers*per {
		t.Fatalf("got %d unique ids, want %d", len(seen), workers*per)
	}
}

func TestGeneratorSurvivesClockRollback(t *testing.T) {
	g := NewGenerator(3)
	clock := int64(epoch + 10_000)
	g.now = func() int64 { return clock }

	first := g.Next()
	clock -= 5_000
	second := g.Next()
	if second <= first {
		t.Fatalf("ids must stay increasing across rollback: %d then %d", first, second)
	}
	if got := (second >> seqBits) & maxNode; got != 3 {
		t.Fatalf("node bits = %d", got)
	}
}
