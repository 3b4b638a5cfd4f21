// Copyright 2026 Kyle Braxton
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

package mcp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts requests written to tool servers
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolhost_mcp_requests_total",
			Help: "Total MCP requests by server and method",
		},
		[]string{"server", "method"},
	)

	// requestFailures counts failed requests by failure category
	requestFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolhost_mcp_request_failures_total",
			Help: "Total failed MCP requests by server and failure reason",
		},
		[]string{"server", "reason"},
	)

	// malformedLines counts stdout lines dropped by the reader loop
	malformedLines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolhost_mcp_malformed_lines_total",
			Help: "Total malformed or unmatched stdout lines dropped by server",
		},
		[]string{"server"},
	)

	// spawnRejections counts spawns blocked by the security gate
	spawnRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "toolhost_mcp_spawn_rejections_total",
			Help: "Total spawn attempts blocked by the security gate",
		},
	)

	// connectedServers tracks the number of live connections
	connectedServers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "toolhost_mcp_connected_servers",
			Help: "Number of currently connected MCP servers",
		},
	)
)

// Failure reason labels for requestFailures.
const (
	reasonTimeout   = "timeout"
	reasonRemote    = "remote_error"
	reasonTransport = "transport"
	reasonClosed    = "closed"
	reasonCanceled  = "canceled"
)
