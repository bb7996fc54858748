// Package interceptor provides gRPC server middleware for iotcloud-server.
//
// Logging() returns a UnaryServerInterceptor that recovers handler panics
// (reported as codes.Internal) and logs method, status code and duration of
// every call at debug level, warn for non-OK codes.
package interceptor
