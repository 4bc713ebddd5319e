// Copyright 2024 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logutil

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	gLogger     atomic.Pointer[zap.Logger]
	gSkipLogger atomic.Pointer[zap.Logger]
	gLogConfig  atomic.Pointer[LogConfig]
)

func init() {
	SetupMOLogger(&LogConfig{
		Level:  zap.InfoLevel.String(),
		Format: "console",
	})
}

// SetupMOLogger builds a logger from conf and installs it as the global logger.
func SetupMOLogger(conf *LogConfig) {
	logger := conf.build()
	replaceGlobalLogger(logger)
	gLogConfig.Store(conf)
}

func replaceGlobalLogger(logger *zap.Logger) {
	gLogger.Store(logger)
	gSkipLogger.Store(logger.WithOptions(zap.AddCallerSkip(1)))
}

// GetGlobalLogger returns the current global logger.
func GetGlobalLogger() *zap.Logger {
	return gLogger.Load()
}

func getGlobalLogConfig() *LogConfig {
	return gLogConfig.Load()
}

func skipLogger() *zap.Logger {
	return gSkipLogger.Load()
}

func Debug(msg string, fields ...zap.Field) {
	skipLogger().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	skipLogger().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	skipLogger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	skipLogger().Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	skipLogger().Fatal(msg, fields...)
}

func Infof(msg string, args ...interface{}) {
	skipLogger().Sugar().Infof(msg, args...)
}
