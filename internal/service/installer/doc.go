// Package installer performs the one-shot provisioning steps around the
// core bootstrap: desktop and autostart entry generation, splash image
// installation and chess engine download. Steps are independent simple file
// operations with no retry or ordering machinery; each failure is reported
// and the remaining steps still run.
package installer
