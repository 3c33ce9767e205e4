// Package harness provides conformance testing for rule definitions.
//
// The harness compiles a definitions directory, executes test scenarios
// against a fresh host, and validates the resulting event trace and
// records.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	definitions: ../defs
//	chain_token: test-chain
//	setup:
//	  - create: Order
//	    as: order
//	    payload: { number: "A-1", items: [{ sku: "x", status: "open" }] }
//	flow:
//	  - update: OrderItem
//	    id: "@order.1"
//	    payload: { status: "done" }
//	    expect:
//	      events: [OrderItem.modified, Order.modified]
//	assertions:
//	  - type: trace_contains
//	    event: Order.modified
//	    record: "@order"
//	    modified: [status]
//	  - type: final_state
//	    schema: Order
//	    id: "@order"
//	    expect: { status: "completed" }
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: an event (optionally on a record, modifying fields) was dispatched
//   - trace_order: events appear in the specified order
//   - trace_count: an event appears exactly N times
//   - final_state: a record holds the expected values, or is absent
//   - field_state: a field's compiled $state carries the expected flags
//
// # Deterministic Testing
//
// Every run uses an in-memory SQLite database, sequential record ids
// ("rec-1", "rec-2", ...) and chain tokens derived from chain_token, so
// traces are identical across runs and can be compared against golden
// files with RunWithGolden.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/rollup.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
