// Package harness runs batch scenarios against a scripted server.
//
// A scenario describes one batch: the session the server advertises, the
// calls to build (with back-references between them by label), the response
// the server gives, and assertions over the outcome. Scenarios run through
// the real client, so every stage of a batch is exercised: build,
// encode, exchange, correlate, and decode.
//
// # Scenario Format
//
//	name: inbox_lookup
//	description: "Query the inbox and fetch it by reference"
//	batch_token: test-batch-inbox
//	session:
//	  state: s1
//	  capabilities: [urn:ietf:params:jmap:mail]
//	calls:
//	  - label: query
//	    method: Mailbox/query
//	    args: { filter: { role: inbox } }
//	  - label: boxes
//	    method: Mailbox/get
//	    refs:
//	      ids: { from: query, path: /ids }
//	response:
//	  session_state: s1
//	  method_responses:
//	    - [Mailbox/get, { state: m1, list: [] }, boxes]
//	    - [Mailbox/query, { queryState: q1, ids: [] }, query]
//	assertions:
//	  - type: call_ok
//	    label: boxes
//
// Labels in method_responses are replaced by the call ids the builder
// issued; any other id is sent as written. Without a response section the
// server echoes every call's arguments back.
//
// # Assertion Types
//
//   - call_ok: the labelled call produced a result
//   - method_error: the labelled call failed with the given error kind
//   - result_contains: the labelled call's raw result contains fields (subset match)
//   - request_order: the encoded request lists methods in this order
//   - entry_count: the labelled call has exactly count response entries
//   - batch_error: the batch failed with the given error code
//
// # Deterministic Testing
//
// Call ids come from a fresh sequence per run and the batch token is fixed,
// so the request body and outcomes of a run are reproducible and can be
// compared against golden files.
package harness
