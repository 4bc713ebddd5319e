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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/matrixorigin/nativevec/pkg/common/moerr"
	"github.com/matrixorigin/nativevec/pkg/config"
	"github.com/matrixorigin/nativevec/pkg/logutil"
	"github.com/matrixorigin/nativevec/pkg/model"
	"github.com/matrixorigin/nativevec/pkg/native"
)

var (
	configFile = flag.String("cfg", "", "toml configuration, defaults are used when empty")
	numTensors = flag.Int("tensors", 4, "number of hidden layers in the demo model")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		panic(fmt.Sprintf("failed to parse config from %s, error: %s", *configFile, err.Error()))
	}
	logutil.SetupMOLogger(&cfg.Log)

	if err := run(context.Background(), cfg, *numTensors, os.Stdout); err != nil {
		logutil.Fatal("vec-inspect failed", zap.Error(err))
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// recoverPanic turns a panic raised by a foreign call into the error run returns.
func recoverPanic(ctx context.Context, err *error) {
	if r := recover(); r != nil {
		e := moerr.ConvertPanicError(ctx, r)
		logutil.Error("vec-inspect: recovered panic", zap.Uint16("code", e.ErrorCode()), zap.Error(e))
		*err = e
	}
}

func run(ctx context.Context, cfg config.Config, layers int, out io.Writer) (err error) {
	defer recoverPanic(ctx, &err)

	reg := prometheus.NewRegistry()
	rt, err := native.Open(cfg.Runtime,
		native.WithAllocatorConfig(cfg.Allocator),
		native.WithMetricsRegisterer(reg),
	)
	if err != nil {
		return err
	}
	defer rt.Close()

	m, err := buildDemoModel(rt, layers)
	if err != nil {
		return err
	}
	defer m.Close()

	inspect(m, out)
	removed := m.PruneUnusedTensors()
	fmt.Fprintf(out, "pruned %d unused tensors\n", removed)
	logutil.Infof("vec-inspect: pruned %d unused tensors from %d subgraphs", removed, m.Subgraphs().Len())
	inspect(m, out)

	stats := rt.Stats()
	fmt.Fprintf(out, "runtime %s: %d vectors, %d buffers, %d objects, %d strings, %d bytes\n",
		rt.Name(), stats.Vectors, stats.Buffers, stats.Objects, stats.Strings, stats.Bytes)

	if cfg.Metrics.ListenAddress != "" {
		return serveMetrics(ctx, cfg.Metrics.ListenAddress, reg)
	}
	return nil
}

func inspect(m *model.Model, out io.Writer) {
	for i, g := range m.Subgraphs().All() {
		fmt.Fprintf(out, "subgraph %d %q: %d tensors, %d operators, inputs %s, outputs %s\n",
			i, g.Name(), g.Tensors().Len(), g.Operators().Len(), g.Inputs(), g.Outputs())
		for j, info := range g.TensorInfos() {
			fmt.Fprintf(out, "  %3d %s\n", j, info)
		}
		codes := m.OperatorCodes()
		for j, op := range g.Operators().All() {
			code := codes.At(int(op.OpcodeIndex()))
			fmt.Fprintf(out, "  op %d code %d %s: %s -> %s mutating %s\n",
				j, code.BuiltinCode(), code.CustomCode(), op.Inputs(), op.Outputs(), op.MutatingVariableInputs())
		}
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	errC := make(chan error, 1)
	go func() {
		errC <- server.ListenAndServe()
	}()
	logutil.Info("serving metrics", zap.String("address", addr))

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigchan)
	select {
	case err := <-errC:
		return moerr.ConvertGoError(ctx, err)
	case <-ctx.Done():
	case <-sigchan:
	}
	if err := server.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return moerr.ConvertGoError(ctx, err)
	}
	return nil
}
