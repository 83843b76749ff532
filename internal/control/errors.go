package control

import "fmt"

// SafeModeEntered records why the loop stopped actuating.
type SafeModeEntered struct {
	Reason string
	Err    error // last fault before entry, if any
}

func (e *SafeModeEntered) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("safe mode entered: %s: %v", e.Reason, e.Err)
	}
	return "safe mode entered: " + e.Reason
}

func (e *SafeModeEntered) Unwrap() error { return e.Err }
