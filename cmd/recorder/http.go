// Copyright 2023 LiveKit, Inc.
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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/livekit/capture-recorder/pkg/config"
	"github.com/livekit/capture-recorder/pkg/types"
	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/pprof"
)

type statusProvider interface {
	Mode() types.RecordingMode
	State() types.State
	SessionID() string
}

type status struct {
	Mode      types.RecordingMode `json:"mode"`
	State     string              `json:"state"`
	SessionID string              `json:"session_id,omitempty"`
}

type httpHandler struct {
	rec statusProvider
}

func (h *httpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	b, err := json.Marshal(&status{
		Mode:      h.rec.Mode(),
		State:     h.rec.State().String(),
		SessionID: h.rec.SessionID(),
	})
	if err != nil {
		logger.Errorw("failed to read status", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

// debugHandler serves runtime profiles at /debug/pprof/{name}.
type debugHandler struct{}

func (d *debugHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/debug/pprof/")
	if name == "" {
		name = "goroutine"
	}
	timeout, _ := strconv.Atoi(r.URL.Query().Get("timeout"))
	debug, _ := strconv.Atoi(r.URL.Query().Get("debug"))

	b, err := pprof.GetProfileData(r.Context(), name, timeout, debug)
	if err != nil {
		logger.Warnw("failed to get profile data", err, "profile", name)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(b)
}

type servers struct {
	health *http.Server
	prom   *http.Server
}

func startServers(conf *config.ServiceConfig, rec statusProvider) (*servers, error) {
	s := &servers{}
	if conf.HealthPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/debug/pprof/", &debugHandler{})
		mux.Handle("/", &httpHandler{rec: rec})
		srv, err := serve(conf.HealthPort, mux)
		if err != nil {
			return nil, err
		}
		s.health = srv
	}
	if conf.PrometheusPort > 0 {
		handler := promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}),
		)
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		srv, err := serve(conf.PrometheusPort, mux)
		if err != nil {
			s.shutdown()
			return nil, err
		}
		s.prom = srv
	}
	return s, nil
}

func serve(port int, handler http.Handler) (*http.Server, error) {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}
	l, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, err
	}
	go func() {
		_ = srv.Serve(l)
	}()
	return srv, nil
}

func (s *servers) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	for _, srv := range []*http.Server{s.health, s.prom} {
		if srv != nil {
			_ = srv.Shutdown(ctx)
		}
	}
}
