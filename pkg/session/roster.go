package session

import (
	"sort"
	"sync"

	"github.com/blastzone/netplay/pkg/api"
)

// MaxPlayers is the room size, the host included.
const MaxPlayers = 4

// Roster maps presence keys to player ids, it lives on the host.
// Ids go in join order from 2 and are never reused or changed.
type Roster struct {
	mu   sync.Mutex
	ids  map[string]int
	next int
}

func NewRoster() *Roster { return &Roster{ids: make(map[string]int), next: api.HostId + 1} }

// Sync takes the current key list of the room.
// It returns the new assignments and the ids of members that left.
// Keys over the room size stay without an id.
func (r *Roster) Sync(keys []string, self string) (assigned []api.IdAssignment, left []int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	present := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		present[k] = struct{}{}
	}
	for k, id := range r.ids {
		if _, ok := present[k]; !ok {
			delete(r.ids, k)
			left = append(left, id)
		}
	}
	sort.Ints(left)

	if _, ok := present[self]; ok && self != "" {
		r.ids[self] = api.HostId
	}
	for _, k := range keys {
		if _, ok := r.ids[k]; ok {
			continue
		}
		if len(r.ids) >= MaxPlayers || r.next > MaxPlayers {
			break
		}
		r.ids[k] = r.next
		assigned = append(assigned, api.IdAssignment{PresenceKey: k, PlayerId: r.next})
		r.next++
	}
	return
}

// Id returns the player id of a presence key.
func (r *Roster) Id(key string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.ids[key]
	return id, ok
}

func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}
