// Package service coordinates valley sessions with their collaborators.
//
// ValleyService owns the session store and drives every state transition
// through it. It calls the layout service through each session's layout
// cache, runs simulations in the background (one per session), records
// finished runs in the optional run history and manages the dataset
// directory.
//
// # Event System
//
// The service publishes events via EventBus so connected clients can
// follow sessions over Server-Sent Events: session changes, layout
// updates and failures, simulation progress and dataset changes.
//
// Remote calls never run under a session lock. Their outcome is applied
// with a transition afterwards, so a slow answer can never overwrite a
// newer model.
package service
