package bus

import (
	"sync"

	"github.com/Vinmsh25/skillbarter/pkg/interfaces"
	"github.com/Vinmsh25/skillbarter/pkg/types"
)

// ChatGroupKey derives the broadcast group key for a session's chat channel.
func ChatGroupKey(sessionID string) string {
	return "chat_" + sessionID
}

// Bus maintains per-session broadcast groups and fans typed events out to
// their current members. Groups are independent; broadcasts iterate a
// snapshot of the membership so a concurrent Leave never breaks an in-flight
// fan-out. Delivery order per recipient follows broadcast issue order because
// each member's Deliver feeds a FIFO write queue.
type Bus struct {
	mu     sync.RWMutex
	groups map[string]map[interfaces.GroupMember]struct{}
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		groups: make(map[string]map[interfaces.GroupMember]struct{}),
	}
}

// Join adds a member to a group, creating the group on first join.
func (b *Bus) Join(groupKey string, member interfaces.GroupMember) {
	if member == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	group, exists := b.groups[groupKey]
	if !exists {
		group = make(map[interfaces.GroupMember]struct{})
		b.groups[groupKey] = group
	}
	group[member] = struct{}{}
}

// Leave removes a member from a group; future broadcasts no longer reach it.
// Leaving a group you are not in is a no-op.
func (b *Bus) Leave(groupKey string, member interfaces.GroupMember) {
	b.mu.Lock()
	defer b.mu.Unlock()

	group, exists := b.groups[groupKey]
	if !exists {
		return
	}
	delete(group, member)
	if len(group) == 0 {
		delete(b.groups, groupKey)
	}
}

// Broadcast delivers an event to every current member of the group.
// Delivery is best-effort: members mid-disconnect drop the event silently,
// and recipient-side filters (typing echo suppression) apply in Deliver.
func (b *Bus) Broadcast(groupKey string, event types.Event) {
	b.mu.RLock()
	members := make([]interfaces.GroupMember, 0, len(b.groups[groupKey]))
	for member := range b.groups[groupKey] {
		members = append(members, member)
	}
	b.mu.RUnlock()

	for _, member := range members {
		member.Deliver(event)
	}
}

// Members returns the current size of a group.
func (b *Bus) Members(groupKey string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.groups[groupKey])
}
