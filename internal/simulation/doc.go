// Package simulation runs a single stochastic trajectory of a reaction network.
//
// A Simulation owns its population vector, its event source and its History.
// It shares the network's static tables and dependency graph with every other
// trajectory, and keeps the event source's propensities current after each
// firing: through the cached dependents of the fired reaction when they are
// available, or by refreshing every reaction when they are not.
//
// Usage:
//
//	sim := simulation.New(net, seed, solver.Factory)
//	status, err := sim.RunFor(ctx, stepCutoff)
//	if err != nil {
//	    return err
//	}
//	history := sim.TakeHistory()
package simulation
