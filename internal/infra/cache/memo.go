package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultMemoSize = 512

type memoEntry[V any] struct {
	val V
	err error
}

type inflight[V any] struct {
	done chan struct{}
	res  memoEntry[V]
}

// Memo 在一次运行内缓存按 term 的查询结果（含失败结果）。
// 同一 key 的并发调用只执行一次 fn，其余等待共享结果。
type Memo[V any] struct {
	lru *lru.Cache[string, memoEntry[V]]

	mu      sync.Mutex
	pending map[string]*inflight[V]
}

func NewMemo[V any](size int) (*Memo[V], error) {
	if size <= 0 {
		size = DefaultMemoSize
	}
	c, err := lru.New[string, memoEntry[V]](size)
	if err != nil {
		return nil, err
	}
	return &Memo[V]{lru: c, pending: map[string]*inflight[V]{}}, nil
}

// Do 返回 key 的缓存结果；未命中时调用 fn。hit 表示结果来自缓存或其他进行中的调用。
func (m *Memo[V]) Do(key string, fn func() (V, error)) (v V, hit bool, err error) {
	if e, ok := m.lru.Get(key); ok {
		return e.val, true, e.err
	}

	m.mu.Lock()
	if e, ok := m.lru.Get(key); ok {
		m.mu.Unlock()
		return e.val, true, e.err
	}
	if call, ok := m.pending[key]; ok {
		m.mu.Unlock()
		<-call.done
		return call.res.val, true, call.res.err
	}
	call := &inflight[V]{done: make(chan struct{})}
	m.pending[key] = call
	m.mu.Unlock()

	call.res.val, call.res.err = fn()

	m.mu.Lock()
	m.lru.Add(key, call.res)
	delete(m.pending, key)
	m.mu.Unlock()
	close(call.done)

	return call.res.val, false, call.res.err
}

// Forget 删除 key（例如 ctx 取消导致的失败不应被复用）。
func (m *Memo[V]) Forget(key string) {
	m.lru.Remove(key)
}

func (m *Memo[V]) Len() int { return m.lru.Len() }
