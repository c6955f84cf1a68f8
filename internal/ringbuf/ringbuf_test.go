package ringbuf

import (
	"sync"
	"testing"
)

func TestBufferKeepsLastCapacityItems(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		appended int
		want     []int
	}{
		{"empty", 3, 0, []int{}},
		{"partial", 3, 2, []int{0, 1}},
		{"exact", 3, 3, []int{0, 1, 2}},
		{"wrapped", 3, 7, []int{4, 5, 6}},
		{"single", 1, 5, []int{4}},
		{"zero capacity", 0, 5, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := New[int](tt.capacity)
			for i := 0; i < tt.appended; i++ {
				buf.Append(i)
			}
			got := buf.Snapshot()
			if len(got) != len(tt.want) {
				t.Fatalf("snapshot %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("snapshot %v, want %v", got, tt.want)
				}
			}
			if buf.Len() != len(tt.want) {
				t.Fatalf("Len() = %d, want %d", buf.Len(), len(tt.want))
			}
			if buf.Cap() != tt.capacity {
				t.Fatalf("Cap() = %d, want %d", buf.Cap(), tt.capacity)
			}
		})
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	buf := New[int](2)
	buf.Append(1)
	buf.Append(2)
	snap := buf.Snapshot()
	buf.Append(3)
	snap[0] = 99
	if snap[1] != 2 {
		t.Fatalf("snapshot changed after append: %v", snap)
	}
	if again := buf.Snapshot(); again[0] != 2 || again[1] != 3 {
		t.Fatalf("buffer affected by snapshot mutation: %v", again)
	}
}

func TestNegativeCapacityIsZero(t *testing.T) {
	buf := New[string](-4)
	buf.Append("x")
	if buf.Cap() != 0 || buf.Len() != 0 {
		t.Fatalf("expected empty zero-capacity buffer, got cap=%d len=%d", buf.Cap(), buf.Len())
	}
}

func TestReset(t *testing.T) {
	buf := New[int](3)
	for i := 0; i < 5; i++ {
		buf.Append(i)
	}
	buf.Reset()
	if buf.Len() != 0 {
		t.Fatalf("expected empty buffer after reset, got %d", buf.Len())
	}
	buf.Append(7)
	if got := buf.Snapshot(); len(got) != 1 || got[0] != 7 {
		t.Fatalf("unexpected snapshot after reset %v", got)
	}
}

func TestConcurrentSnapshotsAreOrdered(t *testing.T) {
	buf := New[int](16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5000; i++ {
			buf.Append(i)
		}
	}()
	for i := 0; i < 500; i++ {
		snap := buf.Snapshot()
		for j := 1; j < len(snap); j++ {
			if snap[j] != snap[j-1]+1 {
				t.Fatalf("torn snapshot %v", snap)
			}
		}
	}
	wg.Wait()
}
