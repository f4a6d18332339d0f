// Package runner executes check plans and reruns groups of checks that share
// mutable state as a unit.
//
// The main components are:
//   - Orchestrator: intercepts every check, drives a group through fail-fast
//     attempts and publishes the assembled per-check events
//   - ReportAssembler: turns a group's attempt history into published events,
//     relabelling superseded failures as reruns
//   - Session: the host loop handing a plan to the orchestrator in order
//   - Coordinator: spreads a plan over workers, keeping every group on one worker
//   - InProcessEngine and GoTestEngine: execution engines for Go functions and
//     for test functions run through `go test -json`
//   - FixtureCache: memoized setup results whose failures are dropped before a rerun
package runner
