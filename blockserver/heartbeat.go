package blockserver

import "time"

// runHeartbeat sends periodic liveness pings to the coordinator. After
// MaxHeartbeatFailures consecutive misses it falls back to a fresh
// registration attempt, the same recovery path the original data node uses
// when heartbeats keep failing.
func (b *BlockServer) runHeartbeat() {
	ticker := time.NewTicker(b.cfg.HeartbeatInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if err := b.coord.Heartbeat(b.cfg.SelfAddr); err != nil {
				failures++
				b.log.Printf("heartbeat failed (%d/%d): %v", failures, b.cfg.MaxHeartbeatFailures, err)
				if failures >= b.cfg.MaxHeartbeatFailures {
					b.log.Printf("too many consecutive heartbeat failures, attempting re-registration")
					if rerr := b.coord.Register(b.cfg.SelfAddr); rerr == nil {
						failures = 0
					} else {
						b.log.Printf("re-registration failed: %v", rerr)
					}
				}
			} else {
				failures = 0
			}
		}
	}
}
