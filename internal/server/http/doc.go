// Package httpserver serves the ops endpoint shared by both daemons:
// /v1/healthz, /v1/status and the Prometheus /metrics handler.
//
// Example:
//
//	s := httpserver.New(httpserver.HealthFunc(check), nil, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, "127.0.0.1:9109")
package httpserver
