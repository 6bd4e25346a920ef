// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analyzer

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

func TestNewNotifier_NilWithoutChannels(t *testing.T) {
	assert.Nil(t, NewNotifier(NotifyConfig{}, nil))
}

func TestNotifier_NilReceiverIsSafe(t *testing.T) {
	var n *Notifier
	n.Notify([]datatypes.Alert{{Type: "error_spike", Source: "console"}})
}

func TestNotifier_WebhookDelivery(t *testing.T) {
	var mu sync.Mutex
	var bodies [][]byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
	}))
	defer srv.Close()

	n := NewNotifier(NotifyConfig{
		Channels:   []string{"webhook"},
		WebhookURL: srv.URL,
	}, nil)
	require.NotNil(t, n)

	n.Notify([]datatypes.Alert{{Type: "error_spike", Source: "console", Count: 12}})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bodies) == 1
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	var payload struct {
		Alerts []datatypes.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(bodies[0], &payload))
	require.Len(t, payload.Alerts, 1)
	assert.Equal(t, "error_spike", payload.Alerts[0].Type)
	assert.Equal(t, 12, payload.Alerts[0].Count)
}

func TestNotifier_EmptyAlertsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected webhook call")
	}))
	defer srv.Close()

	n := NewNotifier(NotifyConfig{Channels: []string{"webhook"}, WebhookURL: srv.URL}, nil)
	n.Notify(nil)
	time.Sleep(50 * time.Millisecond)
}

func TestSlackText(t *testing.T) {
	text := slackText([]datatypes.Alert{
		{Type: "error_spike", Source: "console", Count: 15},
		{Type: "slow_response", Source: "http_traffic", Duration: 900, Average: 120},
	})
	assert.Contains(t, text, "error spike on console: 15 errors")
	assert.Contains(t, text, "slow response on http_traffic: 900.0 ms")
}
