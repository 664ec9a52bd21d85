package player

import "sync"

// Registry tracks live players by voice channel id. It is injected into
// the bot layer and the players themselves so teardown can deregister
// without reaching for a package-level singleton.
type Registry interface {
	Get(channelID string) (*MusicPlayer, bool)
	Has(channelID string) bool
	Add(channelID string, p *MusicPlayer)
	Remove(channelID string)
	// Any returns an arbitrary live player; used to enforce the
	// one-session-at-a-time rule.
	Any() (*MusicPlayer, bool)
}

type MemoryRegistry struct {
	mu      sync.RWMutex
	players map[string]*MusicPlayer
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{players: make(map[string]*MusicPlayer)}
}

func (r *MemoryRegistry) Get(channelID string) (*MusicPlayer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[channelID]
	return p, ok
}

func (r *MemoryRegistry) Has(channelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.players[channelID]
	return ok
}

func (r *MemoryRegistry) Add(channelID string, p *MusicPlayer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players[channelID] = p
}

func (r *MemoryRegistry) Remove(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.players, channelID)
}

func (r *MemoryRegistry) Any() (*MusicPlayer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.players {
		return p, true
	}
	return nil, false
}
