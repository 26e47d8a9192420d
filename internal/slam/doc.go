// Package slam implements landmark EKF-SLAM over a growing joint state.
//
// The state is the robot pose (x, y, heading) followed by the positions of
// every tracked point landmark. The covariance is kept in full, including
// all robot-landmark and landmark-landmark cross terms. Landmarks are never
// removed, so the state only grows; the covariance lives in an arena that
// doubles its capacity and is grown in place otherwise.
//
// Observations are landmark positions in the robot body frame. Each is
// gated by Mahalanobis distance against every tracked landmark and then
// either fused with the nearest one, added as a new landmark or discarded
// as ambiguous.
package slam
