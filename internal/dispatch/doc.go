// Package dispatch issues randomised taps and swipes.
//
// Taps land at a polar offset from the control centre: the radius is drawn
// from the control's jitter range and the angle uniformly from [0, 2π).
// All waits and distances are drawn uniformly from closed intervals using a
// per-session math/rand source seeded from crypto/rand.
package dispatch
