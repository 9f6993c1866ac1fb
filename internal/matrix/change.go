package matrix

// ChangeKind classifies a mutation of the device model for collaborators.
type ChangeKind string

const (
	// ChangeRouting: the destination connection list changed.
	ChangeRouting ChangeKind = "routing"
	// ChangeNaming: a display value changed but the set of choices did not.
	ChangeNaming ChangeKind = "naming"
	// ChangeStructural: the choice set changed (new port, preset list, capability).
	// Collaborators should rebuild their definitions.
	ChangeStructural ChangeKind = "structural"
)

// ChangeListener receives change notifications. It is called from the
// protocol reader goroutine and must not block.
type ChangeListener func(kind ChangeKind)
