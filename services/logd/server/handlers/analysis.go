// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"encoding/json"

	"github.com/recursivelog/logcollector/services/logd/datatypes"
)

// analysisParams is shared by the analysis methods.
type analysisParams struct {
	AnalysisType string `json:"analysis_type"`
	TimeRange    string `json:"time_range"`
}

// analysisEnvelope is the common result wrapper.
func analysisEnvelope(analysisType, timeRange string, result any) map[string]any {
	if timeRange == "" {
		timeRange = "24h"
	}
	return map[string]any{
		"analysis_type": analysisType,
		"time_range":    timeRange,
		"generated_at":  datatypes.Now(),
		"result":        result,
	}
}

// runAnalysis dispatches on analysis_type. "errors" and "patterns" both
// group error messages; they differ only in the envelope label.
func (h *RPC) runAnalysis(ctx context.Context, params json.RawMessage) (any, error) {
	var p analysisParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	switch p.AnalysisType {
	case "errors", "patterns":
		result, err := h.errorPatternResult(ctx, p.TimeRange)
		if err != nil {
			return nil, err
		}
		return analysisEnvelope(p.AnalysisType, p.TimeRange, result), nil
	case "performance":
		return h.getPerformanceAnalysis(ctx, params)
	case "trends":
		return h.getTrendAnalysis(ctx, params)
	default:
		return nil, datatypes.NewRPCError(datatypes.RPCInvalidParams,
			"unknown analysis_type: "+p.AnalysisType)
	}
}

func (h *RPC) errorPatternResult(ctx context.Context, timeRange string) (map[string]any, error) {
	patterns, total, err := h.store.ErrorPatterns(ctx, timeRange)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"patterns":     patterns,
		"total_errors": total,
	}, nil
}

func (h *RPC) getErrorPatterns(ctx context.Context, params json.RawMessage) (any, error) {
	var p analysisParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	result, err := h.errorPatternResult(ctx, p.TimeRange)
	if err != nil {
		return nil, err
	}
	return analysisEnvelope("errors", p.TimeRange, result), nil
}

func (h *RPC) getPerformanceAnalysis(ctx context.Context, params json.RawMessage) (any, error) {
	var p analysisParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	profiles, err := h.store.DurationProfiles(ctx, p.TimeRange)
	if err != nil {
		return nil, err
	}
	return analysisEnvelope("performance", p.TimeRange, map[string]any{
		"sources": profiles,
	}), nil
}

func (h *RPC) getTrendAnalysis(ctx context.Context, params json.RawMessage) (any, error) {
	var p analysisParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	trends, err := h.store.LevelTrends(ctx, p.TimeRange)
	if err != nil {
		return nil, err
	}
	return analysisEnvelope("trends", p.TimeRange, map[string]any{
		"levels": trends,
	}), nil
}

// detectAnomalies reads the analyzer's live windows rather than the
// store; it reflects the last error_spike_window seconds only.
func (h *RPC) detectAnomalies(_ context.Context, params json.RawMessage) (any, error) {
	var p analysisParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	anomalies := h.analyzer.Anomalies()
	if anomalies == nil {
		anomalies = []datatypes.Alert{}
	}
	return analysisEnvelope("anomalies", p.TimeRange, map[string]any{
		"anomalies":      anomalies,
		"window_seconds": h.analyzer.Window().Seconds(),
	}), nil
}
