// Package service is the introspection surface of the runtime: it routes
// decoded requests to built-in or embedder-registered handlers at root or
// isolate scope, and fans runtime events out to attached observers.
// Handler failures never escape the dispatch boundary; every request gets
// exactly one structured response.
package service
