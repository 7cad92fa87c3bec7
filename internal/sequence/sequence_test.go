package sequence

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/pacer/internal/message"
)

func TestNumber(t *testing.T) {
	tests := []struct {
		name  string
		start int64
		step  int64
		want  []string
	}{
		{"default step", 0, 0, []string{"0", "1", "2"}},
		{"custom start and step", 10, 5, []string{"10", "15", "20"}},
		{"negative step", 3, -1, []string{"3", "2", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNumber(tt.start, tt.step)
			for i, want := range tt.want {
				if got := n.Next(); got != want {
					t.Errorf("Next() #%d = %v, want %v", i, got, want)
				}
			}
		})
	}
}

func TestTimestamp(t *testing.T) {
	ts := NewTimestamp()
	fixed := time.UnixMilli(1700000000123)
	ts.now = func() time.Time { return fixed }
	assert.Equal(t, "1700000000123", ts.Next())
}

func TestUUID(t *testing.T) {
	var u UUID
	first, second := u.Next(), u.Next()

	_, err := uuid.Parse(first)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestNew(t *testing.T) {
	for _, kind := range []string{"", "number", "timestamp", "uuid", "constant"} {
		seq, err := New(kind, 0, 1, "c")
		require.NoError(t, err, kind)
		assert.NotEmpty(t, seq.Next(), kind)
	}

	_, err := New("fibonacci", 0, 1, "")
	assert.Error(t, err)
}

func TestManager_Snapshot(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Add("id", NewNumber(100, 1)))
	require.NoError(t, m.Add("tenant", Constant("acme")))

	first := m.Snapshot()
	second := m.Snapshot()

	assert.Equal(t, message.Attributes{
		message.AttrMessageNumber: "0",
		"id":                      "100",
		"tenant":                  "acme",
	}, first)
	assert.Equal(t, "1", second[message.AttrMessageNumber])
	assert.Equal(t, "101", second["id"])
	assert.Equal(t, []string{"id", "tenant"}, m.Names())
}

func TestManager_AddErrors(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Add("a", Constant("x")))

	assert.Error(t, m.Add("a", Constant("y")), "duplicate")
	assert.Error(t, m.Add("", Constant("y")), "empty name")
	assert.Error(t, m.Add(message.AttrMessageNumber, Constant("y")), "reserved")
}

func TestManager_ConcurrentSnapshotsAreUnique(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Add("n", NewNumber(0, 1)))

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := m.Snapshot()
				mu.Lock()
				seen[s["n"]] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 800)
}
