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

package rest

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeremyhahn/go-passkey-idp/pkg/adapters/logger"
)

func TestWriteJSON_EncodeFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	orig := encodeLog
	encodeLog = logger.NewSlogAdapter(&logger.SlogConfig{
		Logger: slog.New(slog.NewJSONHandler(&buf, nil)),
	})
	t.Cleanup(func() { encodeLog = orig })

	rr := httptest.NewRecorder()
	writeJSON(rr, map[string]interface{}{"bad": make(chan int)}, http.StatusOK)

	// The status line is already out; the failure only shows in the log.
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, buf.String(), "Failed to encode JSON response")
}

func TestOIDCStatusCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"invalid_client", http.StatusUnauthorized},
		{"invalid_token", http.StatusUnauthorized},
		{"invalid_request", http.StatusBadRequest},
		{"invalid_grant", http.StatusBadRequest},
		{"unsupported_grant_type", http.StatusBadRequest},
		{"server_error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, oidcStatusCode(tt.code))
		})
	}
}
