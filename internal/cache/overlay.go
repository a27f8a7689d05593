package cache

import (
	"sync"
	"time"
)

type memoryEntry struct {
	value    string
	deadline Deadline
}

// Overlay 是按原始 key 索引的内存快路径，只是缓存而非事实来源。
// 不做后台淘汰：过期条目仅在被访问时由 Store 删除，内存占用随不同 key 增长，
// 直到 Delete/Clear。可注入多个 Store 共享，调用方需自行保证 key 空间不冲突。
// nil *Overlay 表示关闭内存层，所有方法都是安全的空操作。
type Overlay struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
}

// NewOverlay 创建空的内存层。
func NewOverlay() *Overlay {
	return &Overlay{items: make(map[string]memoryEntry)}
}

// Lookup 返回 key 的值及其在 now 时刻的过期状态；found 为 false 表示内存层未命中。
// 过期条目原样返回状态，由调用方负责删除。
func (o *Overlay) Lookup(key string, now time.Time) (value string, state ExpiryState, found bool) {
	if o == nil {
		return "", StateNever, false
	}
	o.mu.RLock()
	entry, ok := o.items[key]
	o.mu.RUnlock()
	if !ok {
		return "", StateNever, false
	}
	return entry.value, entry.deadline.State(now), true
}

// Put 无条件覆盖 key。
func (o *Overlay) Put(key, value string, deadline Deadline) {
	if o == nil {
		return
	}
	o.mu.Lock()
	o.items[key] = memoryEntry{value: value, deadline: deadline}
	o.mu.Unlock()
}

// Delete 删除单个 key。
func (o *Overlay) Delete(key string) {
	if o == nil {
		return
	}
	o.mu.Lock()
	delete(o.items, key)
	o.mu.Unlock()
}

// Clear 丢弃全部条目。
func (o *Overlay) Clear() {
	if o == nil {
		return
	}
	o.mu.Lock()
	o.items = make(map[string]memoryEntry)
	o.mu.Unlock()
}

// Len 返回当前条目数（含尚未被访问淘汰的过期条目）。
func (o *Overlay) Len() int {
	if o == nil {
		return 0
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.items)
}
