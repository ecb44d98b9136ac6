package main

import "time"

// ConnectivityState is the advisory online flag shown by the dashboard.
type ConnectivityState struct {
	Online     bool      `json:"online"`
	LastUpdate time.Time `json:"last_update"`
}

// connectivityMonitor is the only writer of ConnectivityState.
type connectivityMonitor struct {
	state ConnectivityState
	now   func() time.Time
}

func newConnectivityMonitor(now func() time.Time) *connectivityMonitor {
	if now == nil {
		now = time.Now
	}
	return &connectivityMonitor{now: now}
}

func (c *connectivityMonitor) merged() {
	c.state.Online = true
	c.state.LastUpdate = c.now()
}

// skipped leaves LastUpdate at the time of the last good merge.
func (c *connectivityMonitor) skipped() {
	c.state.Online = false
}

func (c *connectivityMonitor) State() ConnectivityState { return c.state }
