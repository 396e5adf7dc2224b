package sequencer

import (
	"sort"
	"sync"
	"time"

	"github.com/KelvinWu602/blobshard/blueprint"
)

// Roster is the set of storage nodes shards are assigned over.
type Roster struct {
	mu    sync.RWMutex
	nodes map[blueprint.NodeID]time.Time
}

// NewRoster seeds the roster, typically from configuration.
func NewRoster(seed ...blueprint.NodeID) *Roster {
	r := &Roster{nodes: make(map[blueprint.NodeID]time.Time, len(seed))}
	for _, id := range seed {
		if id != blueprint.AllNodes {
			r.nodes[id] = time.Time{}
		}
	}
	return r
}

// MarkOnline records that id announced itself. It reports whether id was new.
func (r *Roster) MarkOnline(id blueprint.NodeID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, known := r.nodes[id]
	r.nodes[id] = time.Now()
	return !known
}

// Online returns the node ids in ascending order.
func (r *Roster) Online() []blueprint.NodeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]blueprint.NodeID, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LastSeen returns when id last announced itself. The zero time means it was only seeded.
func (r *Roster) LastSeen(id blueprint.NodeID) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.nodes[id]
	return t, ok
}
