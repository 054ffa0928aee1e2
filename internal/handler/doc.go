// Package handler implements the HTTP API of the valley server.
//
// ValleyHandler exposes sessions, layouts, simulation runs, datasets and
// run history. Routes use Go 1.22 method patterns and are added to a mux
// with Register.
//
// Middleware provides request logging, panic recovery and CORS support.
//
// Success responses return JSON with 200, 201 or 202. Error responses
// return JSON with {error, details}; the status follows the error kind:
// 404 for unknown sessions, datasets, entities and runs, 400 for model
// and name errors, 502 when the layout or simulation service fails.
package handler
