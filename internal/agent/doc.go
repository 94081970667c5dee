// Package agent implements the device-side control loop.
//
// # Overview
//
// An Agent owns the device identity, a set of timers and a registry of
// SmartREST message handlers. Loop takes over the calling goroutine and
// runs until its context is cancelled:
//
//	a := agent.New(agent.Options{Server: url, DeviceID: id}, logger)
//	a.AddMsgHandler(211, agent.HandlerFunc(onRestart))
//	a.AddTimer(heartbeat)
//	heartbeat.Start()
//	err := a.Loop(ctx)
//
// # Scheduling
//
// Each cycle computes the earliest deadline among active timers and blocks
// on the ingress queue until then. A timeout fires every due timer and
// reschedules it one period from the current time, so a stalled loop never
// produces a burst of catch-up firings. A timer never fires before its
// deadline but may fire arbitrarily late under load. When a timer is already
// due at the start of a cycle, one pending batch is dispatched before the
// timers fire, so a callback that outlasts its period cannot starve ingress.
// Periods shorter than MinInterval are raised to it.
//
// # Dispatch
//
// Inbound batches are tokenized into records and handed to the handler
// registered for each record's leading message id, one record at a time
// and in order. Records without a handler are skipped.
//
// Handlers and timer callbacks run on the loop goroutine and must not
// block.
//
// # Identity
//
// Bootstrap commits tenant credentials; Integrate commits the XID and
// managed object id, pausing the attached Quiescer while it runs. Both are written once and only read afterwards.
// Integrate commits nothing unless the whole handshake succeeds.
//
// # Thread Safety
//
// Timers and handlers must be registered before Loop starts. Identity
// getters and Send are safe from any goroutine.
package agent
