// Package common holds small helpers shared by the board services:
// process discovery and termination by executable name.
package common
