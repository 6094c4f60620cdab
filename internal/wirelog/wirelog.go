// Copyright 2026 The fcgiwire Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package wirelog gives the codec's consumers a single named,
// structured logger, the same way a root-level Log() helper backs an
// entire production config tree with one default zap logger that can
// be swapped out wholesale.
package wirelog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	current *zap.Logger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	current = l.Named("fcgiwire")
}

// Log returns the current default logger. Safe for concurrent use.
func Log() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetLevel rebuilds the default logger at the given level ("debug",
// "info", "warn", "error"). An unrecognized level leaves the logger
// unchanged and returns an error.
func SetLevel(level string) error {
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(level)); err != nil {
		return err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zl)
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	mu.Lock()
	current = l.Named("fcgiwire")
	mu.Unlock()
	return nil
}

// Replace installs l as the default logger, for tests and for hosts
// embedding the codec that already maintain their own zap.Logger.
func Replace(l *zap.Logger) {
	mu.Lock()
	current = l
	mu.Unlock()
}

// DroppedEvent logs, at Warn, a protocol-noise case the session layer
// tolerates rather than errors on: a stream event for an unknown
// request id, or a query/reply with no listener registered.
func DroppedEvent(reason string, requestID uint16) {
	Log().Warn("dropped fastcgi event",
		zap.String("reason", reason),
		zap.Uint16("request_id", requestID),
	)
}
