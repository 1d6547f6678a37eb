// Package simulation runs referral simulations over persona batches.
//
// A Simulator wires the trigger detector, invitation simulator and social
// proof engine to one network.Config snapshot and grows a referral graph
// from personas and their telemetry. Multi-round runs materialize each
// round's new users as synthetic personas so later generations can refer
// too. Config can be swapped at any time with UpdateConfig; runs already in
// flight and engine handles already obtained keep the old snapshot.
//
// Scenario files bundle inputs, a seed and invariants on the resulting
// metrics, for regression checks:
//
//	sc, err := simulation.LoadScenario("testdata/community.yaml")
//	if err != nil { ... }
//	res, err := simulation.RunScenario(ctx, sc)
//	if !res.Passed() { ... }
package simulation
