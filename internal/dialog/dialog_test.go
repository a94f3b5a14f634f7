package dialog

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMemoryStore_SetGetClear(t *testing.T) {
	s := NewMemoryStore()

	if _, ok := s.Get(1); ok {
		t.Fatalf("empty store must not return a marker")
	}

	s.Set(1, AwaitWeight{OrderID: 5})

	m, ok := s.Get(1)
	if !ok {
		t.Fatalf("marker not found after Set")
	}
	if m != (AwaitWeight{OrderID: 5}) {
		t.Fatalf("marker = %+v, want AwaitWeight{5}", m)
	}

	// новый диалог вытесняет предыдущий
	s.Set(1, AwaitTariffCurrency{OrderID: 5, Weight: decimal.NewFromInt(2)})
	m, _ = s.Get(1)
	if _, ok := m.(AwaitTariffCurrency); !ok {
		t.Fatalf("marker = %T, want AwaitTariffCurrency", m)
	}

	s.Clear(1)
	if _, ok := s.Get(1); ok {
		t.Fatalf("marker must be gone after Clear")
	}
}

func TestMemoryStore_ActorsAreIndependent(t *testing.T) {
	s := NewMemoryStore()

	s.Set(1, AwaitTrackNumber{OrderID: 10})
	s.Set(2, AwaitCancelReason{OrderID: 20})

	s.Clear(1)

	if _, ok := s.Get(1); ok {
		t.Fatalf("actor 1 marker must be cleared")
	}
	if m, ok := s.Get(2); !ok || m != (AwaitCancelReason{OrderID: 20}) {
		t.Fatalf("actor 2 marker must survive, got %+v", m)
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(actor int64) {
			defer wg.Done()
			s.Set(actor, AwaitWeight{OrderID: actor})
			s.Get(actor)
			s.Clear(actor)
		}(int64(i))
	}
	wg.Wait()
}
