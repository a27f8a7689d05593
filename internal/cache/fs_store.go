package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// NewStore 以 dir 为根目录构建目录缓存，目录不存在时立即创建。
func NewStore(dir string, opts Options) (Store, error) {
	if dir == "" {
		return nil, ErrDirectoryRequired
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache dir: %w", err)
	}
	if err := ValidatePrefix(opts.Prefix); err != nil {
		return nil, fmt.Errorf("invalid prefix %q: %w", opts.Prefix, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	s := &fileStore{
		dir: abs,
		resolver: PathResolver{
			Dir:    abs,
			Namer:  opts.Namer,
			Prefix: opts.Prefix,
			Suffix: opts.Suffix,
		},
		logger: opts.Logger,
		now:    opts.Clock,
		locks:  make(map[string]*entryLock),
	}
	if opts.MtimeAsTTL {
		s.expiry = opts.Expiry
		if s.expiry == nil {
			s.expiry = MtimeCodec{}
		}
	}
	if !opts.DisableOverlay {
		s.overlay = opts.Overlay
		if s.overlay == nil {
			s.overlay = NewOverlay()
		}
	}
	if s.logger == nil {
		s.logger = logrus.New()
		s.logger.SetOutput(io.Discard)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// fileStore 通过 entryLock 串行化同一文件的写入/删除，读路径不加锁。
type fileStore struct {
	dir      string
	resolver PathResolver
	expiry   ExpiryCodec
	overlay  *Overlay
	logger   *logrus.Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// lookupState 区分“确实不存在”和“操作意外失败”，对外两者都折叠为 ErrNotFound。
type lookupState int

const (
	lookupHit lookupState = iota
	lookupMiss
	lookupExpired
	lookupFailed
)

type lookupResult struct {
	value string
	state lookupState
	path  string
	err   error
}

func (s *fileStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	res := s.lookup(key)
	switch res.state {
	case lookupHit:
		return res.value, nil
	case lookupFailed:
		s.logger.WithFields(logrus.Fields{
			"action": "cache_get",
			"key":    key,
			"path":   res.path,
		}).WithError(res.err).Warn("cache read failed, treated as miss")
	}
	return "", ErrNotFound
}

// lookup 依次查询内存层与磁盘层，两层使用同一个 Deadline.State 判定过期。
func (s *fileStore) lookup(key string) lookupResult {
	now := s.now()

	if value, state, ok := s.overlay.Lookup(key, now); ok {
		if state != StateExpired {
			return lookupResult{value: value, state: lookupHit}
		}
		// 内存层过期即视为权威结论，不再重复读盘
		s.evict(key, "memory")
		return lookupResult{state: lookupExpired}
	}

	filePath := s.resolver.Resolve(key)
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return lookupResult{state: lookupMiss, path: filePath}
		}
		return lookupResult{state: lookupFailed, path: filePath, err: err}
	}
	if info.IsDir() {
		return lookupResult{state: lookupMiss, path: filePath}
	}

	if s.expiry != nil {
		deadline, err := s.expiry.Load(filePath, info)
		if err != nil {
			return lookupResult{state: lookupFailed, path: filePath, err: err}
		}
		if deadline.State(now) == StateExpired {
			s.evict(key, "disk")
			return lookupResult{state: lookupExpired, path: filePath}
		}
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		// stat 与 read 之间被删除属于正常竞争
		if errors.Is(err, fs.ErrNotExist) {
			return lookupResult{state: lookupMiss, path: filePath}
		}
		return lookupResult{state: lookupFailed, path: filePath, err: err}
	}
	return lookupResult{value: string(data), state: lookupHit, path: filePath}
}

func (s *fileStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if value == "" {
		return s.Delete(ctx, key)
	}

	now := s.now()
	deadline := NewDeadline(now, ttl)
	s.overlay.Put(key, value, deadline)

	filePath := s.resolver.Resolve(key)
	unlock := s.lockEntry(filePath)
	defer unlock()

	if err := s.writeEntry(filePath, value, deadline, now); err != nil {
		s.overlay.Delete(key)
		return err
	}
	return nil
}

// writeEntry 不做临时文件 + rename：正文写入与时间戳更新之间崩溃会留下默认 mtime 的文件，
// 在 mtime TTL 模式下它会在下一次读取时被当作过期清理。
func (s *fileStore) writeEntry(filePath, value string, deadline Deadline, now time.Time) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("create entry dir: %w", err)
	}
	if err := os.WriteFile(filePath, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	if s.expiry == nil {
		return nil
	}
	if err := s.expiry.Stamp(filePath, deadline, now); err != nil {
		return fmt.Errorf("stamp entry expiry: %w", err)
	}
	return nil
}

func (s *fileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.evict(key, "delete")
	return nil
}

// evict 同时清理两层，文件不存在视为成功，其它错误仅记录日志。
func (s *fileStore) evict(key, reason string) {
	s.overlay.Delete(key)

	filePath := s.resolver.Resolve(key)
	unlock := s.lockEntry(filePath)
	defer unlock()

	err := os.Remove(filePath)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		if reason != "delete" {
			s.logger.WithFields(logrus.Fields{
				"action": "cache_expire",
				"key":    key,
				"tier":   reason,
			}).Debug("expired entry evicted")
		}
		return
	}
	s.logger.WithFields(logrus.Fields{
		"action": "cache_delete",
		"key":    key,
		"path":   filePath,
	}).WithError(err).Warn("remove cache entry failed")
}

func (s *fileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.overlay.Clear()

	if err := removeAllWithRetry(ctx, s.dir, os.RemoveAll); err != nil {
		s.logger.WithFields(logrus.Fields{
			"action": "cache_clear",
			"dir":    s.dir,
		}).WithError(err).Warn("remove cache dir failed")
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.logger.WithFields(logrus.Fields{
			"action": "cache_clear",
			"dir":    s.dir,
		}).WithError(err).Warn("recreate cache dir failed")
	}
	return nil
}

// removeAllWithRetry 对 ENOTEMPTY/EBUSY 做指数退避重试，其它错误立即返回。
func removeAllWithRetry(ctx context.Context, dir string, remove func(string) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second

	return backoff.Retry(func() error {
		err := remove(dir)
		if err == nil {
			return nil
		}
		// 并发写入可能在递归删除途中重新创建文件
		if errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EBUSY) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))
}

func (s *fileStore) Has(ctx context.Context, key string) bool {
	_, err := s.Get(ctx, key)
	return err == nil
}

func (s *fileStore) Path(key string) string {
	return s.resolver.Resolve(key)
}

func (s *fileStore) Stats() Stats {
	return Stats{
		Dir:            s.dir,
		Prefix:         s.resolver.Prefix,
		Suffix:         s.resolver.Suffix,
		MtimeAsTTL:     s.expiry != nil,
		OverlayEnabled: s.overlay != nil,
		OverlayEntries: s.overlay.Len(),
	}
}

func (s *fileStore) lockEntry(filePath string) func() {
	s.mu.Lock()
	lock := s.locks[filePath]
	if lock == nil {
		lock = &entryLock{}
		s.locks[filePath] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, filePath)
		}
		s.mu.Unlock()
	}
}
