package incremental

// UpdateType is the kind of change applied to a single IU.
type UpdateType int

// Types of updates.
const (
	// Add introduces new IU into receiver's hypothesis.
	Add UpdateType = iota
	// Revoke withdraws previously added and not committed IU.
	Revoke
	// Commit makes previously added IU final.
	Commit
)

func (t UpdateType) String() string {
	switch t {
	case Add:
		return "add"
	case Revoke:
		return "revoke"
	case Commit:
		return "commit"
	}
	return "unknown"
}

// Update is a pair of IU and the change applied to it.
type Update struct {
	IU   *IU
	Type UpdateType
}

// UpdateMessage is an ordered batch of updates produced by one processing
// round of one module. Order of updates is significant. Producer is the ID
// of emitting module, it's set by the network on delivery.
type UpdateMessage struct {
	Producer string
	Updates  []Update
}

// Add appends add update.
func (m *UpdateMessage) Add(iu *IU) {
	m.Updates = append(m.Updates, Update{IU: iu, Type: Add})
}

// Revoke appends revoke update.
func (m *UpdateMessage) Revoke(iu *IU) {
	m.Updates = append(m.Updates, Update{IU: iu, Type: Revoke})
}

// Commit appends commit update.
func (m *UpdateMessage) Commit(iu *IU) {
	m.Updates = append(m.Updates, Update{IU: iu, Type: Commit})
}

// Append adds all updates of another message, preserving order.
func (m *UpdateMessage) Append(other UpdateMessage) {
	m.Updates = append(m.Updates, other.Updates...)
}

// Len returns number of updates in the message.
func (m UpdateMessage) Len() int {
	return len(m.Updates)
}

// IsEmpty returns true if message contains no updates. Empty messages
// are not propagated.
func (m UpdateMessage) IsEmpty() bool {
	return len(m.Updates) == 0
}

// Of returns IUs with provided update type in message order.
func (m UpdateMessage) Of(t UpdateType) []*IU {
	var ius []*IU
	for _, u := range m.Updates {
		if u.Type == t {
			ius = append(ius, u.IU)
		}
	}
	return ius
}

// IUs returns all IUs of the message in order.
func (m UpdateMessage) IUs() []*IU {
	ius := make([]*IU, 0, len(m.Updates))
	for _, u := range m.Updates {
		ius = append(ius, u.IU)
	}
	return ius
}

// copy returns message with its own updates slice, so every subscriber
// receives independent message.
func (m UpdateMessage) copy(producer string) UpdateMessage {
	updates := make([]Update, len(m.Updates))
	copy(updates, m.Updates)
	return UpdateMessage{
		Producer: producer,
		Updates:  updates,
	}
}
