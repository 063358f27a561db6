package cache

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tangzhangming/reactor/internal/config"
	"github.com/tangzhangming/reactor/internal/logging"
	"github.com/tangzhangming/reactor/internal/routine"
)

type blitState struct {
	Format uint32
	Blend  uint8
	Filter bool
	Scale  float32
}

func fake() *routine.Routine {
	return routine.NewStatic(make([]byte, 16), 16, 0)
}

// finalized 模拟 Finalize 的结果：已经 Bind 一次
func finalized() *routine.Routine {
	r := fake()
	r.Bind()
	return r
}

func mustNew[S any](t *testing.T, capacity int) *Cache[S] {
	t.Helper()
	c, err := New[S](capacity)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestRejectsReferenceStates(t *testing.T) {
	if _, err := New[struct{ P *int }](4); !errors.Is(err, ErrReferenceState) {
		t.Errorf("pointer field: err = %v", err)
	}
	if _, err := New[struct {
		A [2]struct{ S string }
	}](4); !errors.Is(err, ErrReferenceState) {
		t.Errorf("nested string: err = %v", err)
	}
	if _, err := New[[]byte](4); !errors.Is(err, ErrReferenceState) {
		t.Errorf("slice: err = %v", err)
	}
	if _, err := New[struct{ N int }](4); !errors.Is(err, ErrReferenceState) {
		t.Errorf("int field: err = %v", err)
	}
	c, err := New[[4]uint32](0)
	if err != nil {
		t.Fatalf("array state: %v", err)
	}
	if c.Capacity() <= 0 {
		t.Errorf("default capacity = %d", c.Capacity())
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.CacheCapacity = 3
	c, err := FromConfig[uint32](cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if c.Capacity() != 3 {
		t.Errorf("Capacity = %d, want 3", c.Capacity())
	}
	for i := uint32(0); i < 5; i++ {
		c.Add(i, fake())
	}
	if c.Len() != 3 {
		t.Errorf("Len = %d, want 3", c.Len())
	}

	d, err := FromConfig[uint32](nil)
	if err != nil {
		t.Fatalf("FromConfig(nil): %v", err)
	}
	if d.Capacity() != config.DefaultCacheCapacity {
		t.Errorf("default Capacity = %d, want %d", d.Capacity(), config.DefaultCacheCapacity)
	}
}

func TestQueryAfterAdd(t *testing.T) {
	c := mustNew[blitState](t, 4)
	s := blitState{Format: 7, Blend: 2, Scale: 0.5}
	r := fake()
	c.Add(s, r)
	if got := c.Query(s); got != r {
		t.Errorf("Query = %p, want %p", got, r)
	}
	if r.Refs() != 1 {
		t.Errorf("Refs = %d, want 1", r.Refs())
	}
	// 只有一位不同
	other := s
	other.Filter = true
	if got := c.Query(other); got != nil {
		t.Errorf("Query(mismatch) = %p, want nil", got)
	}
	// -0 与 +0 相等但位不同
	neg := s
	neg.Scale = 0
	c.Add(neg, fake())
	neg.Scale = float32(math.Copysign(0, -1))
	if got := c.Query(neg); got != nil {
		t.Errorf("Query(-0) = %p, want nil", got)
	}
}

// 按 7, 8, 7, 8, 8 查询，只生成两次
func TestGenerateOncePerState(t *testing.T) {
	c := mustNew[blitState](t, 4)
	generated := map[uint32]int{}
	var got []*routine.Routine
	for _, f := range []uint32{7, 8, 7, 8, 8} {
		r, err := c.GetOrGenerate(blitState{Format: f}, func() (*routine.Routine, error) {
			generated[f]++
			return finalized(), nil
		})
		if err != nil {
			t.Fatalf("GetOrGenerate(%d): %v", f, err)
		}
		got = append(got, r)
	}
	if diff := cmp.Diff(map[uint32]int{7: 1, 8: 1}, generated); diff != "" {
		t.Errorf("generation counts (-want +got):\n%s", diff)
	}
	if got[0] != got[2] || got[1] != got[3] || got[3] != got[4] || got[0] == got[1] {
		t.Error("queries did not return the cached routines")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	// 生成时的引用已经转交给缓存
	if got[0].Refs() != 1 {
		t.Errorf("Refs = %d, want 1", got[0].Refs())
	}
}

func TestGeneratorError(t *testing.T) {
	c := mustNew[blitState](t, 4)
	boom := errors.New("boom")
	if _, err := c.GetOrGenerate(blitState{}, func() (*routine.Routine, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if c.Len() != 0 {
		t.Errorf("failed generation left %d entries", c.Len())
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging.Set(zap.New(core))
	defer logging.Set(nil)

	c := mustNew[uint64](t, 2)
	a, b, d := fake(), fake(), fake()
	c.Add(1, a)
	c.Add(2, b)
	c.Query(1) // 2 变成最久未用
	c.Add(3, d)

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if c.Query(2) != nil {
		t.Error("entry 2 should have been evicted")
	}
	if c.Query(1) != a || c.Query(3) != d {
		t.Error("surviving entries lost")
	}
	if b.Refs() != 0 || a.Refs() != 1 {
		t.Errorf("refs after eviction: evicted %d, kept %d", b.Refs(), a.Refs())
	}
	if logs.FilterMessage("cache: evicted routine").Len() != 1 {
		t.Errorf("expected one eviction log, got %v", logs.All())
	}
}

func TestAddReplacesSameState(t *testing.T) {
	c := mustNew[uint32](t, 4)
	old, cur := fake(), fake()
	c.Add(5, old)
	c.Add(5, cur)
	if c.Query(5) != cur {
		t.Error("last write should win")
	}
	if old.Refs() != 0 || c.Len() != 1 {
		t.Errorf("old refs = %d, Len = %d", old.Refs(), c.Len())
	}
}

func TestClearUnbindsAll(t *testing.T) {
	c := mustNew[uint32](t, 4)
	rs := []*routine.Routine{fake(), fake(), fake()}
	for i, r := range rs {
		c.Add(uint32(i), r)
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len = %d after Clear", c.Len())
	}
	for i, r := range rs {
		if r.Refs() != 0 {
			t.Errorf("routine %d still has %d refs", i, r.Refs())
		}
	}
	c.Add(9, fake())
	if c.Len() != 1 {
		t.Error("cache unusable after Clear")
	}
}
