package pipeline

// State names one stage of the answer pipeline. Every ask call walks the
// states in order; Blocked is terminal and reachable from either safety
// gate.
type State string

const (
	StateStart         State = "start"
	StateSafetyGateIn  State = "safety_gate_in"
	StateIntentRoute   State = "intent_route"
	StateRetrieve      State = "retrieve"
	StateRerank        State = "rerank"
	StateGenerate      State = "generate"
	StateSafetyGateOut State = "safety_gate_out"
	StateMemoryUpdate  State = "memory_update"
	StateDone          State = "done"
	StateBlocked       State = "blocked"
)
