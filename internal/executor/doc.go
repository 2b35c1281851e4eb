// Package executor runs a planner.Plan over one batch of records, calling the
// field collaborators declared in the graph.
//
// # Execution Model
//
// Plan nodes run strictly in plan order. Each node is one logical step across
// the whole batch and a node does not start until the previous one finished
// for every record, because later bodies read fields populated earlier.
//
//   - Primary: the node's Enumerator is called once with the node's selectors
//     (nil/true/false stripped) and the request options. Every returned payload
//     becomes one Record with the primary field stored. Each record's frame
//     stack is seeded with the toplevel frame, whose active dependencies are
//     the requested fields.
//   - Loaded: a frame is pushed on every live record, the node's KeyFunc
//     derives one key per record, the Loader is called once with the distinct
//     keys in first-seen order, and each record's field is assigned from the
//     returned map. A key missing from the map leaves the field not loaded.
//     The frames are popped afterwards.
//   - Computed: for each live record a frame is pushed, the ComputeFunc runs and
//     its result is stored, and the frame is popped.
//
// A frame lists the targets of the node's active edges for this plan, so a
// body may read exactly the fields it declared and that were activated. See
// package record for the access guard.
//
// # Errors
//
// Collaborator errors abort the whole Execute call. They are wrapped with the
// operation and field name and remain matchable with errors.Is. No row-level
// isolation is attempted; a collaborator that wants partial failure returns a
// record.Failure value instead of an error. With WithDropFailed such records
// are removed before the next node runs and from the result; otherwise the
// Failure is stored like any other value.
//
// # Parallelism
//
// WithParallelism(n) lets Computed nodes evaluate up to n records at once.
// The barrier between nodes is kept: the next node starts only after every
// record finished. Loaded and Primary nodes are a single call regardless.
//
// # Events
//
// BatchStart/BatchFinish and NodeStart/NodeFinish (package events) are
// published on the process event bus; debug logs go to the context logger.
package executor
