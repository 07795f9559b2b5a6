package emit

// Event is an observability record produced during a workflow run.
//
// Msg names what happened ("node_start", "node_end", "node_retry",
// "node_error", "checkpoint_saved", "run_complete", "run_resumed").
// Meta carries optional details such as "latency_ms", "attempt" or "error".
type Event struct {
	RunID  string
	Step   int
	NodeID string
	Msg    string
	Meta   map[string]interface{}
}

// Error returns the "error" metadata entry, if any.
func (e Event) Error() (string, bool) {
	msg, ok := e.Meta["error"].(string)
	return msg, ok
}
