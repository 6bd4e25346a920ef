// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

// notifyTimeout bounds one outbound delivery attempt.
const notifyTimeout = 5 * time.Second

// NotifyConfig is the resolved alerts-channel configuration.
type NotifyConfig struct {
	// Channels selects delivery targets: "console", "webhook", "slack".
	Channels []string

	// WebhookURL receives a JSON POST per alert batch when the
	// "webhook" channel is enabled.
	WebhookURL string

	// SlackToken and SlackChannel configure chat.postMessage delivery
	// when the "slack" channel is enabled.
	SlackToken   string
	SlackChannel string
}

// Notifier fans raised alerts out to the configured channels. Delivery
// is best effort and asynchronous; a failed channel is logged and never
// blocks ingestion. A nil *Notifier is valid and does nothing.
type Notifier struct {
	cfg  NotifyConfig
	log  *slog.Logger
	http *http.Client
}

// NewNotifier builds a notifier, or returns nil when no channel is
// configured.
func NewNotifier(cfg NotifyConfig, log *slog.Logger) *Notifier {
	if len(cfg.Channels) == 0 {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.SlackChannel == "" {
		cfg.SlackChannel = "#alerts"
	}
	return &Notifier{
		cfg:  cfg,
		log:  log,
		http: &http.Client{Timeout: notifyTimeout},
	}
}

// Notify delivers alerts to every enabled channel. Safe on nil.
func (n *Notifier) Notify(alerts []datatypes.Alert) {
	if n == nil || len(alerts) == 0 {
		return
	}
	for _, channel := range n.cfg.Channels {
		switch channel {
		case "console":
			for _, a := range alerts {
				n.log.Warn("alert raised",
					"type", a.Type, "source", a.Source,
					"count", a.Count, "duration", a.Duration)
			}
		case "webhook":
			if n.cfg.WebhookURL != "" {
				go n.postWebhook(alerts)
			}
		case "slack":
			if n.cfg.SlackToken != "" {
				go n.postSlack(alerts)
			}
		default:
			n.log.Warn("unknown alert channel", "channel", channel)
		}
	}
}

func (n *Notifier) postWebhook(alerts []datatypes.Alert) {
	payload, err := json.Marshal(map[string]any{"alerts": alerts})
	if err != nil {
		return
	}
	if err := n.post(n.cfg.WebhookURL, "", payload); err != nil {
		n.log.Warn("webhook alert delivery failed", "error", err)
	}
}

func (n *Notifier) postSlack(alerts []datatypes.Alert) {
	payload, err := json.Marshal(map[string]any{
		"channel": n.cfg.SlackChannel,
		"text":    slackText(alerts),
	})
	if err != nil {
		return
	}
	if err := n.post("https://slack.com/api/chat.postMessage", n.cfg.SlackToken, payload); err != nil {
		n.log.Warn("slack alert delivery failed", "error", err)
	}
}

func (n *Notifier) post(url, token string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func slackText(alerts []datatypes.Alert) string {
	var buf bytes.Buffer
	for _, a := range alerts {
		switch a.Type {
		case "error_spike":
			fmt.Fprintf(&buf, ":rotating_light: error spike on %s: %d errors in window\n", a.Source, a.Count)
		case "slow_response":
			fmt.Fprintf(&buf, ":snail: slow response on %s: %.1f ms (avg %.1f ms)\n", a.Source, a.Duration, a.Average)
		default:
			fmt.Fprintf(&buf, "alert %s on %s\n", a.Type, a.Source)
		}
	}
	return buf.String()
}
