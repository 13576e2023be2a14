package resource

import (
	"github.com/wippyai/pgbridge"
)

// Handle is an opaque reference to a value in a table. The low 24 bits are
// the slot, the high 8 bits a generation that changes whenever the slot is
// reused, so a stale handle never resolves to a newer value.
// Handle 0 is reserved and always invalid.
type Handle uint32

const (
	slotBits = 24
	slotMask = 1<<slotBits - 1
	maxSlots = slotMask
)

func makeHandle(slot uint32, gen uint8) Handle {
	return Handle(uint32(gen)<<slotBits | slot)
}

func (h Handle) slot() uint32 { return uint32(h) & slotMask }

func (h Handle) gen() uint8 { return uint8(uint32(h) >> slotBits) }

// Kind is a caller-chosen type identifier for the values in a table.
type Kind uint32

// Event types for resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
	EventBorrowed
	EventBorrowReturned

	// EventInvalidated is sent for each value dropped because its arena
	// was reset or deleted.
	EventInvalidated
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	case EventBorrowed:
		return "borrowed"
	case EventBorrowReturned:
		return "borrow_returned"
	case EventInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// Event represents a resource lifecycle event.
type Event struct {
	Value  any
	Arena  pgbridge.ArenaPtr
	Handle Handle
	Kind   Kind
	Type   EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Dropper is optionally implemented by values that need cleanup when they
// leave the table, whether removed or invalidated by an arena reset.
type Dropper interface {
	Drop()
}
