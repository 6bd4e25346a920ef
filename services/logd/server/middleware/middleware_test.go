// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw...)
	router.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.POST("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return router
}

func get(router *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuth_Disabled(t *testing.T) {
	router := newRouter(Auth(""))
	assert.Equal(t, http.StatusOK, get(router, nil).Code)
}

func TestAuth_MissingToken(t *testing.T) {
	router := newRouter(Auth("secret"))
	assert.Equal(t, http.StatusUnauthorized, get(router, nil).Code)
}

func TestAuth_WrongToken(t *testing.T) {
	router := newRouter(Auth("secret"))
	w := get(router, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_ValidToken(t *testing.T) {
	router := newRouter(Auth("secret"))
	w := get(router, map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS_Headers(t *testing.T) {
	router := newRouter(CORS())
	w := get(router, nil)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Preflight(t *testing.T) {
	router := newRouter(CORS())
	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter_AllowsBurstThenRefuses(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	router := newRouter(rl.Middleware())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get(router, nil).Code, "burst request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, get(router, nil).Code)
}

func TestRateLimiter_PerClientIsolation(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.2"), "second client has its own bucket")
}

func TestConcurrencyLimit_PassesUnderCap(t *testing.T) {
	router := newRouter(ConcurrencyLimit(2))
	assert.Equal(t, http.StatusOK, get(router, nil).Code)
}

func TestRequestTimeout_SetsDeadline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestTimeout(5 * time.Second))
	router.GET("/x", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		assert.True(t, ok, "request context must carry a deadline")
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
