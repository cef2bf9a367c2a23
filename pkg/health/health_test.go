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

package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_LiveAlwaysHealthy(t *testing.T) {
	c := NewChecker()
	result := c.Live(context.Background())
	assert.Equal(t, StatusHealthy, result.Status)
	assert.Equal(t, "liveness", result.Name)
}

func TestChecker_ReadyNoChecks(t *testing.T) {
	c := NewChecker()
	results := c.Ready(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, StatusHealthy, results[0].Status)
}

func TestChecker_ReadyRunsRegisteredChecks(t *testing.T) {
	c := NewChecker()
	c.RegisterCheck("storage", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy, Message: "backend reachable"}
	})
	c.RegisterCheck("signing-key", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusUnhealthy, Error: errors.New("key not loaded").Error()}
	})

	results := c.Ready(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusUnhealthy, AggregateStatus(results))
	assert.False(t, c.IsHealthy(context.Background()))
}

func TestChecker_ReadyResultsSortedByName(t *testing.T) {
	c := NewChecker()
	for _, name := range []string{"storage", "signing-key", "clients"} {
		c.RegisterCheck(name, func(ctx context.Context) CheckResult {
			return CheckResult{Status: StatusHealthy}
		})
	}

	results := c.Ready(context.Background())
	require.Len(t, results, 3)
	assert.Equal(t, "clients", results[0].Name)
	assert.Equal(t, "signing-key", results[1].Name)
	assert.Equal(t, "storage", results[2].Name)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "storage: healthy",
		Describe(CheckResult{Name: "storage", Status: StatusHealthy}))
	assert.Equal(t, "signing-key: unhealthy (key not loaded)",
		Describe(CheckResult{Name: "signing-key", Status: StatusUnhealthy, Error: "key not loaded"}))
}

func TestChecker_UnregisterCheck(t *testing.T) {
	c := NewChecker()
	c.RegisterCheck("storage", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusUnhealthy}
	})
	c.UnregisterCheck("storage")
	assert.True(t, c.IsHealthy(context.Background()))
}

func TestChecker_Startup(t *testing.T) {
	c := NewChecker()

	result := c.Startup(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.False(t, c.IsStarted())

	c.MarkStarted()
	result = c.Startup(context.Background())
	assert.Equal(t, StatusHealthy, result.Status)
	assert.True(t, c.IsStarted())
}

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name    string
		results []CheckResult
		want    Status
	}{
		{"all healthy", []CheckResult{{Status: StatusHealthy}, {Status: StatusHealthy}}, StatusHealthy},
		{"one degraded", []CheckResult{{Status: StatusHealthy}, {Status: StatusDegraded}}, StatusDegraded},
		{"unhealthy wins", []CheckResult{{Status: StatusDegraded}, {Status: StatusUnhealthy}}, StatusUnhealthy},
		{"empty", nil, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AggregateStatus(tt.results))
		})
	}
}
