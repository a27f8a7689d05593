package cache

import (
	"context"
	"errors"
	"time"

	"github.com/any-hub/dirkv/internal/codec"
)

// ErrStoreUnavailable 表示 Typed 未注入底层 Store。
var ErrStoreUnavailable = errors.New("cache store unavailable")

// TypedOptions 控制 Typed 的命名空间与默认 TTL。
type TypedOptions struct {
	// Namespace 非空时实际 key 为 "namespace:key"。
	Namespace string
	// DefaultTTL 在 Set 传入 0 时生效；保持 0 表示永不过期。
	DefaultTTL time.Duration
}

// Typed 在 Store 之上叠加编解码与命名空间，Store 本身只处理字符串。
type Typed[V any] struct {
	store Store
	codec codec.Codec
	opts  TypedOptions
}

// NewTyped 构造带编码的访问器，codec 为 nil 时使用 codec.Raw。
func NewTyped[V any](store Store, c codec.Codec, opts TypedOptions) Typed[V] {
	if c == nil {
		c = codec.Raw
	}
	return Typed[V]{store: store, codec: c, opts: opts}
}

// Enabled 返回当前是否具备底层存储。
func (t Typed[V]) Enabled() bool {
	return t.store != nil
}

func (t Typed[V]) key(key string) string {
	if t.opts.Namespace == "" {
		return key
	}
	return t.opts.Namespace + ":" + key
}

// Get 读取并解码。未命中返回 ErrNotFound；解码失败属于数据问题，原样返回。
func (t Typed[V]) Get(ctx context.Context, key string) (V, error) {
	var value V
	if t.store == nil {
		return value, ErrStoreUnavailable
	}
	raw, err := t.store.Get(ctx, t.key(key))
	if err != nil {
		return value, err
	}
	if err := t.codec.Decode(raw, &value); err != nil {
		return value, err
	}
	return value, nil
}

// Set 编码后写入，ttl 为 0 时退回 DefaultTTL。
func (t Typed[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if t.store == nil {
		return ErrStoreUnavailable
	}
	raw, err := t.codec.Encode(value)
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = t.opts.DefaultTTL
	}
	return t.store.Set(ctx, t.key(key), raw, ttl)
}

// Delete 删除命名空间内的 key。
func (t Typed[V]) Delete(ctx context.Context, key string) error {
	if t.store == nil {
		return ErrStoreUnavailable
	}
	return t.store.Delete(ctx, t.key(key))
}

// Has 判断命名空间内的 key 是否存在。
func (t Typed[V]) Has(ctx context.Context, key string) bool {
	if t.store == nil {
		return false
	}
	return t.store.Has(ctx, t.key(key))
}

// Clear 作用于整个目录，不区分命名空间。
func (t Typed[V]) Clear(ctx context.Context) error {
	if t.store == nil {
		return ErrStoreUnavailable
	}
	return t.store.Clear(ctx)
}
