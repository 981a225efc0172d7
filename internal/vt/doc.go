// Package vt manages the controlling terminal of the session client.
//
// It wraps the KD/VT ioctl surface: restoring keyboard decoding and text
// mode on teardown, re-arming automatic VT switching, dropping DRM device
// mastery before the VT is relinquished, reading the current VT number
// from the terminal's device minor, and requesting VT switches.
//
// Restore is best-effort by contract. It runs during crash recovery when
// the privileged helper is already gone, so every step logs its failure
// and the remaining steps still execute.
package vt
