package emit

// NullEmitter discards every event.
type NullEmitter struct{}

// NewNullEmitter returns an emitter that drops events.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit implements Emitter.
func (n *NullEmitter) Emit(_ Event) {}
