// Package features turns a laser scan into geometric observations.
//
// A scan is first cut into runs of neighbouring beams at invalid beams and
// at range discontinuities. Each run is then handed to a RunFitter, which
// partitions it into wall segments and point landmarks. Two fitters are
// provided: IEP (iterative end-point split) and RANSAC, optionally refit by
// total least squares. Segments feed the occupancy grid; points are the
// re-identifiable landmarks the EKF-SLAM estimator tracks.
package features
