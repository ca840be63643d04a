package hw

import (
	"sync"
	"testing"
	"time"
)

func TestCriticalSectionsDoNotOverlap(t *testing.T) {
	var (
		h      Host
		wg     sync.WaitGroup
		inside int
		worst  int
		mu     sync.Mutex
	)

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 50 {
				h.Critical(func() {
					mu.Lock()
					inside++
					worst = max(worst, inside)
					mu.Unlock()

					time.Sleep(10 * time.Microsecond)

					mu.Lock()
					inside--
					mu.Unlock()
				})
			}
		}()
	}

	wg.Wait()

	if worst != 1 {
		t.Errorf("%d critical sections overlapped", worst)
	}
}

func TestSleep(t *testing.T) {
	var h Host

	start := time.Now()
	h.Sleep(2 * time.Millisecond)

	if time.Since(start) < 2*time.Millisecond {
		t.Error("Sleep returned early")
	}
}
