// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultClickHouseImage is the ClickHouse image used by integration tests.
	DefaultClickHouseImage = "clickhouse/clickhouse-server:24.8-alpine"

	clickhouseNativePort = "9000/tcp"
	clickhouseHTTPPort   = "8123/tcp"
)

// ClickHouseContainer is a running ClickHouse server.
type ClickHouseContainer struct {
	testcontainers.Container
	// Addr is the host:port of the native protocol endpoint.
	Addr     string
	Database string
	Username string
	Password string
}

// NewClickHouseContainer starts ClickHouse and waits for its HTTP ping
// endpoint.
func NewClickHouseContainer(ctx context.Context) (*ClickHouseContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        DefaultClickHouseImage,
		ExposedPorts: []string{clickhouseNativePort, clickhouseHTTPPort},
		Env: map[string]string{
			"CLICKHOUSE_USER":     "waypost",
			"CLICKHOUSE_PASSWORD": "waypost",
			"CLICKHOUSE_DB":       "waypost",
		},
		WaitingFor: wait.ForAll(
			wait.ForHTTP("/ping").WithPort(clickhouseHTTPPort),
			wait.ForListeningPort(clickhouseNativePort),
		).WithStartupTimeout(90 * time.Second),
	}

	container, addr, err := startContainer(ctx, req, clickhouseNativePort)
	if err != nil {
		return nil, fmt.Errorf("create clickhouse container: %w", err)
	}

	return &ClickHouseContainer{
		Container: container,
		Addr:      addr,
		Database:  "waypost",
		Username:  "waypost",
		Password:  "waypost",
	}, nil
}
