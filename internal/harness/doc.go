// Package harness runs replication scenarios end to end and checks the
// guarantees of the tap against them.
//
// A scenario describes a fake Asana tree, failures to inject into it, and
// a sequence of sync runs. The harness drives the real engine.Driver,
// watchdog, store and Singer writer against that tree and records a trace
// of every API call, credential refresh, emitted record, STATE commit and
// pass outcome.
//
// # Scenario Format
//
//	name: shared_subtasks
//	description: "A subtask reachable from two parents is emitted once"
//	start_date: "2024-01-01T00:00:00Z"
//	max_calls: 5
//	watermarks:
//	  tasks: "2024-01-01T00:00:00Z"
//	tree:
//	  workspaces: [w1]
//	  projects:
//	    w1:
//	      - {gid: p1, modified_at: "2024-01-01T00:00:00Z"}
//	  tasks:
//	    p1:
//	      - {gid: t1, modified_at: "2024-02-01T00:00:00Z", num_subtasks: 1}
//	  subtasks:
//	    t1:
//	      - {gid: s1, modified_at: "2024-02-03T00:00:00Z", num_subtasks: 0}
//	failures:
//	  - {op: "tasks/t1/subtasks", kind: transient, times: 1}
//	runs:
//	  - streams: [tasks]
//	  - streams: [tags]
//	    expect_error: "stream tags failed"
//	assertions:
//	  - {type: emitted, stream: tasks, run: 1, ids: [t1, s1]}
//	  - {type: watermark, stream: tasks, value: "2024-02-03T00:00:00Z"}
//
// Timestamps reach the engine as strings, the way Asana sends them,
// whether or not they are quoted.
//
// # Assertion Types
//
//   - emitted: the exact ids emitted for a stream, in order, in one run or all
//   - emitted_count: how often one id was emitted across all runs
//   - watermark: the committed watermark in the store ("" for none)
//   - run_status: the recorded status of the stream's last pass
//   - refreshes: the number of successful credential refreshes
//
// # Principles
//
// Independently of its assertions, every scenario is checked against the
// Principles: hierarchical records are emitted once per run, commits
// follow the last record of a successful pass only, the call budget holds
// between refreshes, and committed watermarks never move backwards.
//
// # Golden Traces
//
// RunWithGolden compares the trace, rendered as canonical JSON lines,
// against testdata/golden/<name>.golden. Scenarios run with a frozen
// clock and sequential run ids so traces are reproducible.
package harness
