// Package gateway is the composition root wiring the admission pipeline,
// resilience router, session store and engine client behind one HTTP server.
//
// # Request flow
//
//	transport -> admission pipeline -> canonical parse -> router -> format -> transport
//
// Each inbound endpoint feeds a raw payload into the same process path;
// only the ingress peek and the native reply shape differ per transport.
//
// # Endpoints
//
//   - POST /webhook/telegram - raw Bot API updates, answered inline
//   - POST /api/messages - REST/CLI message envelope
//   - GET /api/sessions?user= - a user's live sessions
//   - GET /api/capabilities - engine capability passthrough
//   - GET /api/stats - pipeline running statistics
//   - GET /health, /health/ready - liveness and readiness
//   - GET /metrics - prometheus collectors (when enabled)
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger, gateway.Options{})
//	err = gw.Run(ctx)        // blocks until ctx is canceled
package gateway
