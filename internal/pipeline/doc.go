// Package pipeline wires the simulator, extractor, estimator, grid and
// controller into the closed estimation-and-planning loop.
//
// Each control tick propagates the estimate over the simulated time that
// passed, asks the controller for a command from the estimated pose, hands
// the simulator the change in command, and, when a new scan is available,
// folds it into the occupancy grid and the landmark map. Observers receive
// a Frame describing the tick.
package pipeline
