// Copyright 2025 Scanmux Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package subscribers

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/scanmux/scanmux/pkg/output"
)

// DiagnosticSubscriber renders diagnostic events up to a maximum verbosity
// level. It is the only subscriber that handles EventDiag, keeping debug
// chatter out of the regular formatters.
type DiagnosticSubscriber struct {
	maxLevel output.OutputLevel
	writer   io.Writer
}

// NewDiagnosticSubscriber creates a subscriber that shows diagnostics at or
// below maxLevel.
func NewDiagnosticSubscriber(maxLevel output.OutputLevel, writer io.Writer) *DiagnosticSubscriber {
	return &DiagnosticSubscriber{
		maxLevel: maxLevel,
		writer:   writer,
	}
}

// Name returns the subscriber identifier.
func (s *DiagnosticSubscriber) Name() string {
	return "diagnostic-subscriber"
}

// ShouldHandle accepts only diagnostic events within the verbosity budget.
func (s *DiagnosticSubscriber) ShouldHandle(event output.OutputEvent) bool {
	return event.Type == output.EventDiag && event.Level <= s.maxLevel
}

// Handle renders one diagnostic line: [LEVEL] HH:MM:SS message key:value ...
func (s *DiagnosticSubscriber) Handle(event output.OutputEvent) {
	parts := []string{
		fmt.Sprintf("[%s]", levelLabel(event.Level)),
		event.Timestamp.Format("15:04:05"),
		event.Message,
	}

	if len(event.Metadata) > 0 {
		keys := make([]string, 0, len(event.Metadata))
		for key := range event.Metadata {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s:%v", key, event.Metadata[key]))
		}
	}

	_, _ = fmt.Fprintln(s.writer, strings.Join(parts, " "))
}

func levelLabel(level output.OutputLevel) string {
	switch level {
	case output.LevelVerbose:
		return "VERBOSE"
	case output.LevelDebug:
		return "DEBUG"
	case output.LevelTrace:
		return "TRACE"
	default:
		return "INFO"
	}
}
