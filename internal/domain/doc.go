// Package domain defines the core types of the hydro valley visualizer.
//
// This package contains the typed valley model and every view derived from it.
// It has no knowledge of JSON parsing rules, HTTP or storage.
//
// # Core Types
//
// ValleyModel is the single source of truth: ordered reservoirs, units
// (turbines and pumps) and junctions. Entity is the closed set of variants
// *Reservoir, *Unit and *Junction.
//
// EntityIndex resolves names to entities and answers "what connects to X",
// including dangling references that name no entity.
//
// Graph is the diagram view built by BuildGraph: one node per entity with
// shape and color hints, one edge per unit reference.
//
// LayoutResult and PositionedGraph carry the external layout for a model
// fingerprint. MergedResults carries simulation series attached to entity
// names, tagged with the fingerprint of the simulated model.
//
// # Fingerprints
//
// A Fingerprint is a BLAKE2b-256 digest of the canonical JSON serialization
// produced by ValleyModel.MarshalJSON. Layout caching and result staleness
// are both keyed on it.
package domain
