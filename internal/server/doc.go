// Package server hosts the Fiber HTTP front end for the cache: request ID
// middleware, the service/lookup handlers, and the glue that turns configured
// groups into fetchers. Keep exports narrow and accept explicit dependencies so
// cmd code and tests can inject fakes.
package server
