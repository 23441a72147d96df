// Package proctree watches the process tree below a session's shell and
// reports which coding agent, if any, is running in it and whether it looks
// busy. Process data comes from procfs via github.com/prometheus/procfs.
package proctree
