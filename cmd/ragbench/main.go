// Command ragbench runs technique fan-outs, evaluates persisted QA records,
// and manages sessions against the same dispatcher and persistence
// components the rest of this tree provides as a library.
package main

import (
	"errors"
	"fmt"
	"os"
)

// exitError carries an exit code alongside a human message.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, ee.err)
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}
