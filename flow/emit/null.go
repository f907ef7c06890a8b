package emit

// NullEmitter discards all events. Zero overhead, safe for concurrent
// use; the default when no emitter is configured.
type NullEmitter struct{}

// NewNullEmitter creates an emitter that drops everything.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

func (*NullEmitter) Emit(Event) {}
