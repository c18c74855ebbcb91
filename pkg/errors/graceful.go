// Package errors handles the forwarder's process-fatal error classes.
// Only three things can kill the process: an unreadable or invalid
// configuration, a listener that fails to bind, and a server goroutine
// dying unexpectedly. Probe failures are folded into scoring and dial or
// relay errors stay local to their connection; none of those reach this
// package.
package errors

import (
	"fmt"
	"log"
	"os"
)

// GracefulError wraps a fatal failure with the operation that produced it,
// so the exit line names the component instead of a bare error string.
type GracefulError struct {
	Operation string
	Err       error
}

func (g *GracefulError) Error() string {
	return fmt.Sprintf("operation '%s' failed: %v", g.Operation, g.Err)
}

func (g *GracefulError) Unwrap() error {
	return g.Err
}

// ErrorHandler collects fatal startup and runtime errors and turns them
// into a process exit code. It logs straight to stderr because the first
// errors it sees arrive before the logger is configured.
type ErrorHandler struct {
	exitChannel chan int
	logger      *log.Logger
}

func NewErrorHandler() *ErrorHandler {
	return &ErrorHandler{
		exitChannel: make(chan int, 1),
		logger:      log.New(os.Stderr, "[ERROR] ", log.LstdFlags),
	}
}

// FatalError records an unrecoverable runtime failure, such as a server
// goroutine reporting on the error channel.
func (eh *ErrorHandler) FatalError(operation string, err error) {
	eh.logger.Printf("FATAL: %v", &GracefulError{Operation: operation, Err: err})
	eh.requestExit()
}

// ConfigError records a failure to read or parse the configuration file.
func (eh *ErrorHandler) ConfigError(configPath string, err error) {
	if os.IsNotExist(err) {
		eh.logger.Printf("ERROR: configuration file '%s' not found: %v", configPath, err)
	} else {
		eh.logger.Printf("ERROR: failed to parse configuration file '%s': %v", configPath, err)
	}
	eh.requestExit()
}

// ValidationError records a configuration value that fails validation.
func (eh *ErrorHandler) ValidationError(field string, err error) {
	eh.logger.Printf("ERROR: invalid configuration - %s: %v", field, err)
	eh.requestExit()
}

// WaitForExit blocks until an error has been recorded and returns the
// process exit code.
func (eh *ErrorHandler) WaitForExit() int {
	return <-eh.exitChannel
}

// requestExit arms the exit code once; later errors keep the first code.
func (eh *ErrorHandler) requestExit() {
	select {
	case eh.exitChannel <- 1:
	default:
	}
}
