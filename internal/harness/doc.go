// Package harness replays chat scenarios against the real engine.
//
// A scenario wires a fresh in-memory store, the engine, the dispatcher and a
// fake messenger, plays its steps as updates from named actors and renders
// every transport call into a transcript. Transcripts are compared
// byte-for-byte against golden files; assertions then check the final store
// and session state.
//
// # Scenario Format
//
//	name: marcus_issue
//	description: "A hermit issues a code for Marcus"
//	actors:
//	  - {id: 101, name: Brother Anselm, role: hermit}
//	  - {id: 301, name: Stranger}
//	audit_chat: -1000
//	draws: ["0427"]
//	setup:
//	  codes:
//	    - {code: "1881", owner: Ada, retired: true}
//	steps:
//	  - {actor: 101, command: newcode}
//	  - {actor: 101, text: Marcus}
//	  - {actor: 101, press: "issue:confirm", expect: ok}
//	assertions:
//	  - {type: code_state, code: "0427", owner: Marcus, active: true}
//	  - {type: audit_count, count: 1}
//
// Steps run in the actor's private chat unless chat is set. A press targets
// the newest visible bot message in that chat offering the tag, or the
// message with the given id. fail lists transport operations that fail once
// during the step.
//
// # Assertion Types
//
//   - code_state: the code exists, optionally with owner and active
//   - code_absent: the code was never stored
//   - code_count: number of stored codes (active: true counts active only)
//   - ledger_contains: a record with nickname and, optionally, quantity
//   - ledger_count: number of ledger records
//   - session_count: number of live sessions
//   - audit_count: number of messages in the audit chat
//   - message_contains: some visible bot message in chat contains text
//
// # Determinism
//
// The store clock starts at testutil.Epoch and advances one second per
// write, turn tokens come from testutil.TurnSequence, generated codes from
// the scenario's draws, and audit broadcasts are drained after every step.
package harness
