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
	"context"
	"os"
	"path"
	"regexp"
	"testing"
	"time"

	"github.com/lni/goutils/leaktest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/matrixorigin/nativevec/pkg/common/moerr"
)

func TestLogConfig_getter(t *testing.T) {
	type fields struct {
		Level           string
		Format          string
		StacktraceLevel string

		Entry zapcore.Entry
	}
	tests := []struct {
		name        string
		fields      fields
		wantLevel   zap.AtomicLevel
		wantStack   zapcore.Level
		wantSyncer  zapcore.WriteSyncer
		wantEncoder zapcore.Encoder
	}{
		{
			name: "normal",
			fields: fields{
				Level:  "debug",
				Format: "console",

				Entry: zapcore.Entry{Level: zapcore.DebugLevel, Message: "console msg"},
			},
			wantLevel:   zap.NewAtomicLevelAt(zap.DebugLevel),
			wantStack:   zapcore.FatalLevel,
			wantSyncer:  getConsoleSyncer(),
			wantEncoder: getLoggerEncoder("console"),
		},
		{
			name: "bad level falls back to info",
			fields: fields{
				Level:           "loud",
				Format:          "json",
				StacktraceLevel: "error",

				Entry: zapcore.Entry{Level: zapcore.InfoLevel, Message: "json msg"},
			},
			wantLevel:   zap.NewAtomicLevelAt(zap.InfoLevel),
			wantStack:   zapcore.ErrorLevel,
			wantSyncer:  getConsoleSyncer(),
			wantEncoder: getLoggerEncoder("json"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &LogConfig{
				Level:           tt.fields.Level,
				Format:          tt.fields.Format,
				StacktraceLevel: tt.fields.StacktraceLevel,
			}
			require.Equal(t, tt.wantLevel.Level(), cfg.getLevel().Level())
			require.Equal(t, tt.wantStack, cfg.getStacktraceLevel())
			require.Equal(t, 2, len(cfg.getOptions()))
			require.Equal(t, tt.wantSyncer, cfg.getSyncer())
			wantMsg, _ := tt.wantEncoder.EncodeEntry(tt.fields.Entry, nil)
			gotMsg, _ := cfg.getEncoder().EncodeEntry(tt.fields.Entry, nil)
			require.Equal(t, wantMsg.String(), gotMsg.String())
			require.Equal(t, 1, len(cfg.getSinks()))
		})
	}
}

func TestSetupMOLogger(t *testing.T) {
	defer leaktest.AfterTest(t)()
	tests := []struct {
		name string
		conf *LogConfig
	}{
		{
			name: "console",
			conf: &LogConfig{
				Level:           zapcore.DebugLevel.String(),
				Format:          "console",
				StacktraceLevel: "panic",
			},
		},
		{
			name: "json",
			conf: &LogConfig{
				Level:           zapcore.DebugLevel.String(),
				Format:          "json",
				StacktraceLevel: "error",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetupMOLogger(tt.conf)
			require.Equal(t, tt.conf, getGlobalLogConfig())
			require.NotNil(t, GetGlobalLogger())
			Debug("setup", zap.String("format", tt.conf.Format))
		})
	}
}

func TestSetupMOLogger_panic(t *testing.T) {
	defer leaktest.AfterTest(t)()
	conf := &LogConfig{
		Level:  zapcore.DebugLevel.String(),
		Format: "panic",
	}
	defer func() {
		if err := recover(); err != nil {
			require.Equal(t, moerr.NewInternalError(context.TODO(), "unsupported log format: %s", conf.Format), err)
		} else {
			t.Errorf("not receive panic")
		}
	}()
	SetupMOLogger(conf)
}

func Test_getLoggerEncoder(t *testing.T) {
	defer leaktest.AfterTest(t)()
	entryTime := time.Date(2024, 1, 2, 3, 4, 5, 6000, time.UTC)
	tests := []struct {
		name       string
		format     string
		entry      zapcore.Entry
		wantOutput *regexp.Regexp
	}{
		{
			name:   "console",
			format: "console",
			entry:  zapcore.Entry{Level: zapcore.DebugLevel, Time: entryTime, Message: "console msg"},
			// like: 2024/01/02 03:04:05.000006 +0000 DEBUG console msg
			wantOutput: regexp.MustCompile(`2024/01/02 03:04:05\.000006 \+0000 DEBUG console msg`),
		},
		{
			name:       "json",
			format:     "json",
			entry:      zapcore.Entry{Level: zapcore.DebugLevel, Time: entryTime, Message: "json msg"},
			wantOutput: regexp.MustCompile(`\{.*"level":"DEBUG".*"time":"2024/01/02 03:04:05\.000006 \+0000".*"msg":"json msg".*\}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := getLoggerEncoder(tt.format)
			require.NotNil(t, got)
			buf, err := got.EncodeEntry(tt.entry, nil)
			require.Nil(t, err)
			require.Equal(t, 1, len(tt.wantOutput.FindAll(buf.Bytes(), -1)))
		})
	}
}

func TestSetupMOLogger_file(t *testing.T) {
	filename := path.Join(t.TempDir(), "vec.log")
	SetupMOLogger(&LogConfig{
		Level:    zapcore.InfoLevel.String(),
		Format:   "json",
		Filename: filename,
	})
	defer SetupMOLogger(&LogConfig{Level: zapcore.InfoLevel.String(), Format: "console"})

	Info("hello", zap.Int("int", 7))
	Infof("hello %s", "sugar")
	require.NoError(t, GetGlobalLogger().Sync())

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	require.Regexp(t, `"msg":"hello".*"int":7`, string(data))
	require.Regexp(t, `"msg":"hello sugar"`, string(data))
}

func TestSetupMOLogger_panicDir(t *testing.T) {
	conf := &LogConfig{
		Level:    zapcore.DebugLevel.String(),
		Format:   "json",
		Filename: t.TempDir(),
	}
	defer func() {
		if err := recover(); err != nil {
			require.Equal(t, "log file can't be a directory", err)
		} else {
			t.Errorf("not receive panic")
		}
	}()
	SetupMOLogger(conf)
}
