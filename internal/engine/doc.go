// Package engine decides and performs at most one action per tick.
//
// A tick captures a frame and runs a small state machine:
//
//	NORMAL     terminal controls are checked first on every tick, then all
//	           playable controls are matched and the best candidate is acted on
//	GATE_WAIT  after a gate_trigger tap only the gate control is polled until
//	           it appears or its validity window runs out
//	DONE_TICK  an action was dispatched or an abort was raised
//
// Every wait inside a tick is bounded by the tick budget. Work that cannot
// fit (a timed pre-wait, a swipe) is abandoned and retried on a later tick;
// the post-delay is clipped to what is left.
//
// An Engine is driven by one session goroutine. The catalog and detector
// may be shared between engines; the dispatcher and state may not.
package engine
