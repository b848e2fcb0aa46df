package cache

import "sync"

// KeyedMutex serialises work per key (one lock per market). Locks are
// created on first use and kept; the key space is the configured markets.
type KeyedMutex struct {
	shards [numShards]*lockShard
}

type lockShard struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	k := &KeyedMutex{}
	for i := range k.shards {
		k.shards[i] = &lockShard{locks: make(map[string]*sync.Mutex)}
	}
	return k
}

func (k *KeyedMutex) get(key string) *sync.Mutex {
	s := k.shards[shardIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}

// Lock acquires the lock for key and returns its release func.
func (k *KeyedMutex) Lock(key string) func() {
	m := k.get(key)
	m.Lock()
	return m.Unlock
}
