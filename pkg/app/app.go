// Package app defines the contract between cmd/ entrypoints and the
// processes they start.
package app

// Runner is a process that runs until shutdown and reports why it stopped.
type Runner interface {
	Run() error
}
