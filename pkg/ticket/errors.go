package ticket

import (
	"fmt"
)

var (
	ErrUnknownSetting      = fmt.Errorf("unknown setting")
	ErrInvalidSettingValue = fmt.Errorf("invalid setting value")
	ErrSettingUnavailable  = fmt.Errorf("setting is not available")
	ErrDependencyCycle     = fmt.Errorf("settings dependency cycle")
)

// SettingError reports a rejected setting mutation.
// It satisfies grace.Error so binaries can print actionable messages.
type SettingError struct {
	Name     Name
	Value    any
	Expected string
	Err      error
}

func (e *SettingError) Error() string {
	if e.Expected == "" {
		return fmt.Sprintf("%v: %q", e.Err, e.Name)
	}
	return fmt.Sprintf("%v: %q=%v, expected %s", e.Err, e.Name, e.Value, e.Expected)
}

func (e *SettingError) Unwrap() error {
	return e.Err
}

func (e *SettingError) WhatExpected() string {
	return e.Expected
}

func (e *SettingError) WhatHappened() string {
	return fmt.Sprintf("%v=%v", e.Name, e.Value)
}

func (e *SettingError) WhatToDo() string {
	switch e.Err {
	case ErrUnknownSetting:
		return "use one of the known setting names"
	case ErrSettingUnavailable:
		return "check the document and destination capabilities before changing this setting"
	}
	return "provide a value from the setting's domain"
}

func invalidValue(name Name, value any, expected string) error {
	return &SettingError{Name: name, Value: value, Expected: expected, Err: ErrInvalidSettingValue}
}

func unavailable(name Name, value any, expected string) error {
	return &SettingError{Name: name, Value: value, Expected: expected, Err: ErrSettingUnavailable}
}
