// Package gateway contains the dual-checkpoint orchestrator, the
// state machine at the heart of the service.
//
// Every request passes two policy gates: the input checkpoint before
// any model is contacted, and the output checkpoint before anything
// returns to the caller. A prompt blocked at the input gate never
// reaches a provider; a response blocked at the output gate never
// reaches the client. Escalations pause the request behind a human
// review instead of failing it outright.
package gateway
