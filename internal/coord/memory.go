package coord

import (
	"context"
	"strconv"
	"sync"

	apperrors "github.com/jittakal/poolstore/internal/errors"
	"github.com/jittakal/poolstore/pkg/coord"
)

// MemoryStore implements coord.Store in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	lists  map[string][][]byte
	hashes map[string]map[string]string
	closed bool
}

var _ coord.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lists:  make(map[string][][]byte),
		hashes: make(map[string]map[string]string),
	}
}

func (s *MemoryStore) RPush(_ context.Context, key string, values ...[]byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("rpush", key); err != nil {
		return 0, err
	}
	for _, v := range values {
		s.lists[key] = append(s.lists[key], append([]byte(nil), v...))
	}
	return int64(len(s.lists[key])), nil
}

func (s *MemoryStore) LRange(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("lrange", key); err != nil {
		return nil, err
	}

	list := s.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	start = max(start, 0)
	stop = min(stop, n-1)
	if start > stop {
		return [][]byte{}, nil
	}

	out := make([][]byte, 0, stop-start+1)
	for _, v := range list[start : stop+1] {
		out = append(out, append([]byte(nil), v...))
	}
	return out, nil
}

func (s *MemoryStore) LLen(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("llen", key); err != nil {
		return 0, err
	}
	return int64(len(s.lists[key])), nil
}

func (s *MemoryStore) LRem(_ context.Context, key string, count int64, value string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("lrem", key); err != nil {
		return 0, err
	}
	return s.lrem(key, count, value), nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("del", ""); err != nil {
		return err
	}
	for _, k := range keys {
		delete(s.lists, k)
		delete(s.hashes, k)
	}
	return nil
}

func (s *MemoryStore) HIncrBy(_ context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("hincrby", key); err != nil {
		return 0, err
	}
	return s.hincr(key, field, delta), nil
}

func (s *MemoryStore) HGet(_ context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("hget", key); err != nil {
		return "", false, err
	}
	v, ok := s.hashes[key][field]
	return v, ok, nil
}

func (s *MemoryStore) HSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("hset", key); err != nil {
		return err
	}
	s.hset(key, field, value)
	return nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("hgetall", key); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) Mint(_ context.Context, maxPools int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("mint", coord.KeyCacheInfo); err != nil {
		return "", err
	}

	name, ok := s.mint(maxPools)
	if !ok {
		return "", &apperrors.PoolExhaustedError{MaxPools: maxPools}
	}
	s.lists[coord.KeyReadyList] = append(s.lists[coord.KeyReadyList], []byte(name))
	return name, nil
}

func (s *MemoryStore) ActivateNext(_ context.Context, maxPools int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("activate", coord.KeyCacheInfo); err != nil {
		return "", err
	}
	return s.activate(maxPools)
}

func (s *MemoryStore) AppendActive(_ context.Context, maxPools int, payload []byte) (coord.AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("append", coord.KeyCacheInfo); err != nil {
		return coord.AppendResult{}, err
	}

	active, err := s.activate(maxPools)
	if err != nil {
		return coord.AppendResult{}, err
	}
	s.lists[active] = append(s.lists[active], append([]byte(nil), payload...))
	used := s.hincr(coord.KeyCacheInfo, coord.UsageField(active), int64(len(payload)))
	return coord.AppendResult{Pool: active, Used: used}, nil
}

func (s *MemoryStore) ClaimActive(_ context.Context, expected string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("claim", expected); err != nil {
		return "", false, err
	}

	active, ok := s.hashes[coord.KeyCacheInfo][coord.FieldActive]
	if !ok || (expected != "" && expected != active) {
		return "", false, nil
	}
	delete(s.hashes[coord.KeyCacheInfo], coord.FieldActive)
	return active, true, nil
}

func (s *MemoryStore) Release(_ context.Context, pool string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("release", pool); err != nil {
		return err
	}

	delete(s.lists, pool)
	s.hset(coord.KeyCacheInfo, coord.UsageField(pool), "0")
	s.lrem(coord.KeyReadyList, 0, pool)
	s.lrem(coord.KeyStuckList, 0, pool)
	if s.hashes[coord.KeyCacheInfo][coord.FieldActive] == pool {
		delete(s.hashes[coord.KeyCacheInfo], coord.FieldActive)
	}
	s.lists[coord.KeyReadyList] = append(s.lists[coord.KeyReadyList], []byte(pool))
	return nil
}

func (s *MemoryStore) MarkStuck(_ context.Context, pool string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("mark_stuck", pool); err != nil {
		return err
	}
	s.lrem(coord.KeyStuckList, 0, pool)
	s.lists[coord.KeyStuckList] = append(s.lists[coord.KeyStuckList], []byte(pool))
	return nil
}

func (s *MemoryStore) Reset(_ context.Context, initialPools int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen("reset", coord.KeyCacheInfo); err != nil {
		return err
	}

	s.lists = make(map[string][][]byte)
	s.hashes = make(map[string]map[string]string)
	ready := make([][]byte, 0, initialPools)
	for i := 1; i <= initialPools; i++ {
		ready = append(ready, []byte(coord.PoolName(int64(i))))
	}
	s.lists[coord.KeyReadyList] = ready
	s.hset(coord.KeyCacheInfo, coord.FieldCounter, strconv.Itoa(initialPools))
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkOpen("ping", "")
}

// Close marks the store closed; later calls fail as unavailable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) checkOpen(op, key string) error {
	if s.closed {
		return &apperrors.StoreUnavailableError{Operation: op, Key: key, Err: apperrors.ErrConnectionLost}
	}
	return nil
}

func (s *MemoryStore) activate(maxPools int) (string, error) {
	if active, ok := s.hashes[coord.KeyCacheInfo][coord.FieldActive]; ok {
		return active, nil
	}

	var active string
	if ready := s.lists[coord.KeyReadyList]; len(ready) > 0 {
		active = string(ready[0])
		s.lists[coord.KeyReadyList] = ready[1:]
	} else {
		name, ok := s.mint(maxPools)
		if !ok {
			return "", &apperrors.PoolExhaustedError{MaxPools: maxPools}
		}
		active = name
	}
	s.hset(coord.KeyCacheInfo, coord.FieldActive, active)
	return active, nil
}

func (s *MemoryStore) mint(maxPools int) (string, bool) {
	n, _ := strconv.ParseInt(s.hashes[coord.KeyCacheInfo][coord.FieldCounter], 10, 64)
	if n >= int64(maxPools) {
		return "", false
	}
	n = s.hincr(coord.KeyCacheInfo, coord.FieldCounter, 1)
	return coord.PoolName(n), true
}

func (s *MemoryStore) hset(key, field, value string) {
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	h[field] = value
}

func (s *MemoryStore) hincr(key, field string, delta int64) int64 {
	n, _ := strconv.ParseInt(s.hashes[key][field], 10, 64)
	n += delta
	s.hset(key, field, strconv.FormatInt(n, 10))
	return n
}

// lrem mirrors LREM from the head; a count of zero or less removes all matches.
func (s *MemoryStore) lrem(key string, count int64, value string) int64 {
	list := s.lists[key]
	kept := list[:0:0]
	var removed int64
	for _, v := range list {
		if string(v) == value && (count <= 0 || removed < count) {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	if len(kept) == 0 {
		delete(s.lists, key)
	} else {
		s.lists[key] = kept
	}
	return removed
}
