package session

// ReplanDebug exposes the single-flight replan state.
type ReplanDebug struct {
	InProgress bool
}

// DebugInfo is a point-in-time snapshot of the controller internals, used by
// diagnostics output and tests.
type DebugInfo struct {
	SessionID              string
	Phase                  Phase
	SecondsRemaining       int
	NewQueueLen            int
	ReviewQueueLen         int
	FailedQueueLen         int
	NewDequeues            int
	HydrationBufferLen     int
	WellIndicatedRemaining int
	Replan                 ReplanDebug
}

// GetDebugInfo snapshots the controller state.
func (c *Controller) GetDebugInfo() DebugInfo {
	c.mu.Lock()
	info := DebugInfo{
		SessionID:              c.sessionID,
		Phase:                  c.phase,
		SecondsRemaining:       c.secondsRemaining,
		WellIndicatedRemaining: c.wellIndicated,
		Replan:                 ReplanDebug{InProgress: c.replanInFlight},
	}
	c.mu.Unlock()

	info.NewQueueLen = c.newQ.Len()
	info.ReviewQueueLen = c.reviewQ.Len()
	info.FailedQueueLen = c.failedQ.Len()
	info.NewDequeues = c.newQ.Dequeues()
	info.HydrationBufferLen = c.hydration.BufferLen()
	return info
}
