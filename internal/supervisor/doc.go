// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

/*
Package supervisor provides process supervision for Waypost using suture v4.

The tree isolates failures by layer:

	RootSupervisor ("waypost")
	├── DataSupervisor ("data-layer")
	│   └── StoreHealthService
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocketHubService
	│   └── livesync.Bridge (event bus to live dashboards)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A bridge that keeps failing against an unreachable NATS server restarts with
backoff inside the messaging layer while the HTTP server keeps recording
visits.

Supervisor events (restarts, backoff, timeouts) are logged through
sutureslog. The tree is built once at startup:

	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.TreeConfig{
	    ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddDataService(services.NewStoreHealthService(st, backend, 0, 0))
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(livesync.NewBridge(bus, broker))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)

Concrete service wrappers live in the services subpackage.
*/
package supervisor
