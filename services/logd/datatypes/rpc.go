// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "encoding/json"

// JSON-RPC 2.0 error codes used at the API boundary.
const (
	RPCParseError     = -32700
	RPCInvalidRequest = -32600
	RPCMethodNotFound = -32601
	RPCInvalidParams  = -32602
	RPCInternalError  = -32603
)

// RPCRequest is a JSON-RPC 2.0 request envelope. ID is kept raw so the
// response can echo it byte-for-byte (string, number, or null). A nil ID
// marks a notification: it produces no response object.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r *RPCRequest) IsNotification() bool {
	return len(r.ID) == 0
}

// RPCError is the JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface so handlers can return *RPCError
// through ordinary error plumbing.
func (e *RPCError) Error() string {
	return e.Message
}

// NewRPCError builds an error object with the given code and message.
func NewRPCError(code int, message string) *RPCError {
	return &RPCError{Code: code, Message: message}
}

// RPCResponse is a JSON-RPC 2.0 response envelope. Exactly one of Result
// and Error is populated. ID echoes the request id, or null for error
// responses to unparseable requests.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// NewRPCResult builds a success response echoing id.
func NewRPCResult(id json.RawMessage, result any) *RPCResponse {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &RPCResponse{JSONRPC: "2.0", ID: id, Result: result}
}

// NewRPCErrorResponse builds an error response echoing id.
func NewRPCErrorResponse(id json.RawMessage, rpcErr *RPCError) *RPCResponse {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &RPCResponse{JSONRPC: "2.0", ID: id, Error: rpcErr}
}
