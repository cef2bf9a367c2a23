// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey-idp.
//
// go-passkey-idp is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package metrics

import (
	"context"
	"runtime"
	"time"
)

// DefaultCollectInterval is how often the resource collector samples
// runtime statistics.
const DefaultCollectInterval = 15 * time.Second

// ResourceCollector periodically samples process resource usage into the
// runtime gauges.
type ResourceCollector struct {
	interval time.Duration
	started  time.Time
}

// NewResourceCollector creates a collector with the given sample
// interval. A non-positive interval falls back to the default.
func NewResourceCollector(interval time.Duration) *ResourceCollector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	return &ResourceCollector{interval: interval, started: time.Now()}
}

// Start samples resource gauges until the context is cancelled. It blocks
// and is meant to run in its own goroutine.
func (c *ResourceCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *ResourceCollector) collect() {
	if !IsEnabled() {
		return
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	Goroutines.Set(float64(runtime.NumGoroutine()))
	MemoryAllocBytes.Set(float64(stats.Alloc))
	MemorySysBytes.Set(float64(stats.Sys))
	ServerUptime.Set(time.Since(c.started).Seconds())
}
