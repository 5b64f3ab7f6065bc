// Package httpserver provides a reusable HTTP server with standard health
// endpoints, graceful shutdown and flexible routing for the sidecar
// services around the OPRF enclave (currently the attestation quote
// sidecar).
//
// Components implement RouteRegistrar to mount their endpoints on the
// shared router; BaseServer contributes /livez, /readyz and drain control
// for load balancers, request logging, and lifecycle management.
package httpserver
