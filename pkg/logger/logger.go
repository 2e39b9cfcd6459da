// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package logger provides a logging capability for mcpruntime for running
// locally as a CLI and inside a Kubernetes cluster.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/spf13/viper"
)

// singleton is the package-level logger created by Initialize.
// Accessed atomically to be safe for concurrent use across goroutines.
var singleton atomic.Pointer[slog.Logger]

func init() {
	// Set a default logger so callers that skip Initialize() don't panic.
	singleton.Store(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func get() *slog.Logger {
	return singleton.Load()
}

// Get returns the underlying *slog.Logger for injection into structs.
func Get() *slog.Logger {
	return get()
}

// Set replaces the singleton logger. This is intended for tests that need to
// capture log output; production code should use [Initialize] instead.
func Set(l *slog.Logger) {
	singleton.Store(l)
}

// unstructuredLogs returns whether unstructured (human-readable) log output
// is enabled. Defaults to true unless UNSTRUCTURED_LOGS is set to "false".
func unstructuredLogs() bool {
	viper.SetDefault("unstructured-logs", true)
	if err := viper.BindEnv("unstructured-logs", "UNSTRUCTURED_LOGS"); err != nil {
		return true
	}
	return viper.GetBool("unstructured-logs")
}

// debugEnabled returns whether debug level logging is enabled via the DEBUG
// environment variable.
func debugEnabled() bool {
	if err := viper.BindEnv("debug", "DEBUG"); err != nil {
		return false
	}
	return viper.GetBool("debug")
}

// Initialize creates the singleton logger. If unstructured logs are enabled,
// output is formatted for humans; otherwise JSON lines are written to stderr.
func Initialize() {
	level := slog.LevelInfo
	if debugEnabled() {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if unstructuredLogs() {
		handler = newUnstructuredHandler(os.Stderr, level)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	singleton.Store(slog.New(handler))
}

// unstructuredHandler formats log records as "LEVEL: message key=value".
type unstructuredHandler struct {
	w     io.Writer
	level slog.Level
	attrs []slog.Attr
}

func newUnstructuredHandler(w io.Writer, level slog.Level) *unstructuredHandler {
	return &unstructuredHandler{w: w, level: level}
}

func (h *unstructuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *unstructuredHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Level.String())
	sb.WriteString(": ")
	sb.WriteString(r.Message)
	for _, attr := range h.attrs {
		fmt.Fprintf(&sb, " %s=%v", attr.Key, attr.Value)
	}
	r.Attrs(func(attr slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%v", attr.Key, attr.Value)
		return true
	})
	sb.WriteString("\n")
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *unstructuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &unstructuredHandler{w: h.w, level: h.level, attrs: merged}
}

func (h *unstructuredHandler) WithGroup(_ string) slog.Handler {
	return h
}

// Debug logs a message at debug level using the singleton logger.
func Debug(msg string) {
	get().Debug(msg)
}

// Debugf logs a message at debug level using the singleton logger.
func Debugf(msg string, args ...any) {
	get().Debug(fmt.Sprintf(msg, args...))
}

// Debugw logs a message at debug level using the singleton logger with additional key-value pairs.
func Debugw(msg string, keysAndValues ...any) {
	get().Debug(msg, keysAndValues...)
}

// Info logs a message at info level using the singleton logger.
func Info(msg string) {
	get().Info(msg)
}

// Infof logs a message at info level using the singleton logger.
func Infof(msg string, args ...any) {
	get().Info(fmt.Sprintf(msg, args...))
}

// Infow logs a message at info level using the singleton logger with additional key-value pairs.
func Infow(msg string, keysAndValues ...any) {
	get().Info(msg, keysAndValues...)
}

// Warn logs a message at warning level using the singleton logger.
func Warn(msg string) {
	get().Warn(msg)
}

// Warnf logs a message at warning level using the singleton logger.
func Warnf(msg string, args ...any) {
	get().Warn(fmt.Sprintf(msg, args...))
}

// Warnw logs a message at warning level using the singleton logger with additional key-value pairs.
func Warnw(msg string, keysAndValues ...any) {
	get().Warn(msg, keysAndValues...)
}

// Error logs a message at error level using the singleton logger.
func Error(msg string) {
	get().Error(msg)
}

// Errorf logs a message at error level using the singleton logger.
func Errorf(msg string, args ...any) {
	get().Error(fmt.Sprintf(msg, args...))
}

// Errorw logs a message at error level using the singleton logger with additional key-value pairs.
func Errorw(msg string, keysAndValues ...any) {
	get().Error(msg, keysAndValues...)
}
