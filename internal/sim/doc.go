// Package sim produces ground truth for the rest of the stack.
//
// The Simulator integrates an acceleration-limited unicycle whose actual
// velocity lags the commanded velocity inside a bounded tracking-error band.
// The Laser casts a fan of noisy beams from the true pose against the static
// map and publishes each finished scan with a single atomic pointer swap, so
// readers on other goroutines never observe a partially written scan.
//
// Runner ties the two together on a ticker and is the physics half of the
// two-goroutine model; the estimation half lives in package pipeline.
package sim
