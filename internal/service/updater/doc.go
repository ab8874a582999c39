// Package updater keeps the on-device installation synchronized with its
// upstream repository.
//
// An untracked installation is initialized into a tracked clone; a tracked
// installation is compared against the remote and hard-reset on divergence.
// The user settings file survives every synchronization unchanged, and a
// check-only mode reports divergence through the exit status without
// mutating anything.
package updater
