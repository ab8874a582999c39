// Package config defines installation settings used by the board binaries and
// provides helpers to load, validate and save them in YAML format.
//
// The remote repository URL and branch are fixed constants at the operator
// surface; they live in the Config struct so the synchronizer can be pointed
// at a local fixture repository in tests.
package config
