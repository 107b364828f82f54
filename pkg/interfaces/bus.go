package interfaces

import "github.com/Vinmsh25/skillbarter/pkg/types"

// GroupMember is one recipient in a broadcast group. Deliver is best-effort:
// implementations drop the event rather than block or fail the broadcast,
// and apply any recipient-side filtering (e.g. typing echo suppression).
type GroupMember interface {
	Identity() types.Identity
	Deliver(event types.Event)
}

// GroupBus fans typed events out to the current members of a group.
type GroupBus interface {
	Join(groupKey string, member GroupMember)
	Leave(groupKey string, member GroupMember)
	Broadcast(groupKey string, event types.Event)
}
