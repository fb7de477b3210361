// Package existence implements the resource existence sweep: a single,
// sequential, resumable pass over every known resource that fetches its page,
// decides whether the parsed record is still complete, and persists a
// memoryless existence status per resource.
//
// The sweep never aborts because of a single resource. Fetch failures are
// classified by kind (timeout vs. anything else), parse failures count as an
// incomplete record, and soft-block responses (anti-bot interstitials) leave
// the resource untouched. Progress is published as best-effort key/value
// events, and the fetch session is recycled at a fixed cadence to bound the
// memory held by long-lived browser-like sessions.
package existence
