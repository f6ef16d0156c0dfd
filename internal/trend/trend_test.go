package trend

import (
	"sync"
	"testing"
	"time"
)

func TestBuffer_EvictsOldestAfterCapacity(t *testing.T) {
	b := New(DefaultCapacity)
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 11; i++ {
		b.Add(t0.Add(time.Duration(i)*time.Second), float64(i))
	}

	got := b.Samples()
	if len(got) != DefaultCapacity {
		t.Fatalf("len=%d, want %d", len(got), DefaultCapacity)
	}
	if got[0].Temp != 1 {
		t.Fatalf("oldest should be sample 1 after eviction, got %.0f", got[0].Temp)
	}
	if got[len(got)-1].Temp != 10 {
		t.Fatalf("newest should be sample 10, got %.0f", got[len(got)-1].Temp)
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Time.After(got[i-1].Time) {
			t.Fatalf("samples out of order at %d: %v", i, got)
		}
	}
}

func TestBuffer_NeverExceedsCapacity(t *testing.T) {
	b := New(3)
	for i := 0; i < 50; i++ {
		b.Add(time.Now(), float64(i))
		if b.Len() > 3 {
			t.Fatalf("len=%d exceeds capacity", b.Len())
		}
	}
	if !b.Full() {
		t.Fatalf("expected full buffer")
	}
	last, ok := b.Last()
	if !ok || last.Temp != 49 {
		t.Fatalf("last=%+v ok=%v", last, ok)
	}
}

func TestBuffer_EmptyAndDefaults(t *testing.T) {
	b := New(0)
	if b.Cap() != DefaultCapacity {
		t.Fatalf("cap=%d, want %d", b.Cap(), DefaultCapacity)
	}
	if _, ok := b.Last(); ok {
		t.Fatalf("expected no last sample")
	}
	if got := b.Samples(); len(got) != 0 {
		t.Fatalf("expected empty samples, got %v", got)
	}
}

func TestBuffer_SamplesIsACopy(t *testing.T) {
	b := New(2)
	b.Add(time.Now(), 1)
	s := b.Samples()
	s[0].Temp = 99
	if last, _ := b.Last(); last.Temp != 1 {
		t.Fatalf("buffer mutated through returned slice")
	}
}

func TestBuffer_ConcurrentAdd(t *testing.T) {
	b := New(DefaultCapacity)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.Add(time.Now(), float64(i))
				_ = b.Samples()
			}
		}()
	}
	wg.Wait()
	if b.Len() != DefaultCapacity {
		t.Fatalf("len=%d", b.Len())
	}
}
