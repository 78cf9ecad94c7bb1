// Package server hosts the Fiber listener that fronts the shadow proxy: it
// attaches panic recovery and request-id middleware, reserves the /-/ prefix
// for diagnostics, and hands every other request to a ProxyHandler. It also
// owns the shared upstream http.Client used to reach production and sandbox
// backends. Keep exports narrow and accept explicit dependencies.
package server
