package grace

import (
	"errors"
	"fmt"
)

type Error interface {
	error

	WhatExpected() string
	WhatHappened() string
	WhatToDo() string
}

type ActionableError struct {
	expected     string
	got          string
	callToAction string
}

func (e *ActionableError) WhatExpected() string {
	return e.expected
}

func (e *ActionableError) WhatHappened() string {
	return e.got
}

func (e *ActionableError) WhatToDo() string {
	return e.callToAction
}

func (e *ActionableError) Error() string {
	return fmt.Sprintf("expected: %s, got: %s; What to do: %s", e.expected, e.got, e.callToAction)
}

func RaiseError(
	expected, got, cta string,
) Error {
	return &ActionableError{
		expected:     expected,
		got:          got,
		callToAction: cta,
	}
}

// Describe formats the actionable part of err, if any error in its chain carries one.
func Describe(err error) (string, bool) {
	var actionable Error
	if !errors.As(err, &actionable) {
		return "", false
	}

	return fmt.Sprintf("  expected: %s\n  got: %s\n  what to do: %s",
		actionable.WhatExpected(), actionable.WhatHappened(), actionable.WhatToDo()), true
}
