// Package cache 按状态描述缓存生成好的例程
//
// 状态描述是调用方定义的、可按位比较的结构体，比如像素格式和混合模式的组合。
// 键是各字段按小端序依次排列的字节，不含结构体填充，因此状态类型只能由
// 定长的值组成：指针、切片、字符串以及平台相关宽度的 int/uint 都不允许。
//
// Cache 没有内部锁。调用方在同一个锁下完成 查询-生成-插入，
// 通常就是代码生成会话本身持有的进程锁。
package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/tangzhangming/reactor/internal/config"
	"github.com/tangzhangming/reactor/internal/logging"
	"github.com/tangzhangming/reactor/internal/routine"
)

// ErrReferenceState 状态类型包含引用，不能按位比较
var ErrReferenceState = errors.New("cache: state type is not bitwise comparable")

// Cache 状态到例程的有界映射，满了以后淘汰最久没有使用的条目
type Cache[S any] struct {
	entries  map[string]*routine.Routine
	order    []string // 最近使用的在最后
	capacity int
}

// New 创建容量为 capacity 的缓存；capacity <= 0 时使用默认容量
func New[S any](capacity int) (*Cache[S], error) {
	var zero S
	t := reflect.TypeOf(&zero).Elem()
	if err := checkPlain(t); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrReferenceState, t, err)
	}
	if capacity <= 0 {
		capacity = config.DefaultCacheCapacity
	}
	return &Cache[S]{
		entries:  make(map[string]*routine.Routine),
		order:    make([]string, 0, capacity),
		capacity: capacity,
	}, nil
}

// FromConfig 按配置的 cache_capacity 创建缓存
func FromConfig[S any](cfg *config.Config) (*Cache[S], error) {
	if cfg == nil {
		cfg = config.Default()
	}
	return New[S](cfg.CacheCapacity)
}

// checkPlain 检查类型只由定长的值组成
func checkPlain(t reflect.Type) error {
	switch t.Kind() {
	case reflect.Bool, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return nil
	case reflect.Array:
		return checkPlain(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if err := checkPlain(t.Field(i).Type); err != nil {
				return fmt.Errorf("field %s: %w", t.Field(i).Name, err)
			}
		}
		return nil
	case reflect.Int, reflect.Uint, reflect.Uintptr:
		return fmt.Errorf("%s has a platform-dependent size", t.Kind())
	}
	return fmt.Errorf("%s values hold references", t.Kind())
}

// key 状态值的字段字节；New 已经保证 S 是定长类型
func key[S any](s *S) string {
	b, err := binary.Append(nil, binary.LittleEndian, s)
	if err != nil {
		panic("cache: " + err.Error())
	}
	return string(b)
}

// Len 当前条目数
func (c *Cache[S]) Len() int {
	return len(c.entries)
}

// Capacity 最大条目数
func (c *Cache[S]) Capacity() int {
	return c.capacity
}

// Query 按位相同的状态对应的例程，没有时返回 nil
// 返回的例程由缓存持有，调用方需要在淘汰后继续使用时自己 Bind。
func (c *Cache[S]) Query(state S) *routine.Routine {
	k := key(&state)
	r, ok := c.entries[k]
	if !ok {
		return nil
	}
	c.touch(k)
	return r
}

// Add 插入例程并持有一个引用；相同状态的旧例程被替换并释放引用
func (c *Cache[S]) Add(state S, r *routine.Routine) {
	k := key(&state)
	r.Bind()
	if old, ok := c.entries[k]; ok {
		c.entries[k] = r
		c.touch(k)
		old.Unbind()
		return
	}
	if len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	c.entries[k] = r
	c.order = append(c.order, k)
}

// GetOrGenerate 命中时直接返回，否则调用 gen 生成并插入
// gen 返回已经 Bind 过一次的例程（Finalize 的结果），这个引用转交给缓存。
func (c *Cache[S]) GetOrGenerate(state S, gen func() (*routine.Routine, error)) (*routine.Routine, error) {
	if r := c.Query(state); r != nil {
		return r, nil
	}
	r, err := gen()
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errors.New("cache: generator returned no routine")
	}
	c.Add(state, r)
	r.Unbind()
	return r, nil
}

// Clear 删除所有条目并释放引用
func (c *Cache[S]) Clear() {
	for _, k := range c.order {
		c.entries[k].Unbind()
	}
	c.entries = make(map[string]*routine.Routine)
	c.order = c.order[:0]
}

// touch 把 k 移到最近使用的位置
func (c *Cache[S]) touch(k string) {
	for i, o := range c.order {
		if o == k {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, k)
}

// evictOldest 淘汰最久没有使用的条目
func (c *Cache[S]) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	k := c.order[0]
	r := c.entries[k]
	delete(c.entries, k)
	c.order = c.order[1:]
	freed := r.Unbind()
	logging.L().Debug("cache: evicted routine", zap.Int("entries", len(c.entries)), zap.Bool("freed", freed))
}
