package message

import (
	"fmt"
	"strings"

	"github.com/ukhas/habitat-sub001/errors"
)

// Type is the closed enumeration of message types.
// Values are stable and form part of the wire form of forwarded messages.
type Type int

const (
	// ReceivedTelem is raw telemetry received by a listener
	ReceivedTelem Type = iota
	// ListenerInfo is information about a listener
	ListenerInfo
	// ListenerTelem is telemetry about a listener (its location)
	ListenerTelem
	// Telem is parsed payload telemetry
	Telem

	numTypes
)

var typeNames = [numTypes]string{
	ReceivedTelem: "RECEIVED_TELEM",
	ListenerInfo:  "LISTENER_INFO",
	ListenerTelem: "LISTENER_TELEM",
	Telem:         "TELEM",
}

// Valid reports whether t is a member of the enumeration.
func (t Type) Valid() bool {
	return t >= 0 && t < numTypes
}

// String returns the stable name of the type, e.g. "RECEIVED_TELEM".
func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

// MarshalText renders the stable name. Invalid types cannot be marshalled.
func (t Type) MarshalText() ([]byte, error) {
	if err := ValidateType(t); err != nil {
		return nil, err
	}
	return []byte(typeNames[t]), nil
}

// UnmarshalText accepts the stable name in any case.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseType converts a type name into a Type. Matching ignores case.
func ParseType(name string) (Type, error) {
	for i, n := range typeNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Type(i), nil
		}
	}
	return 0, errors.Newf(errors.ErrValueKind, "message", "ParseType", "unknown message type %q", name)
}

// AllTypes returns every type in value order.
func AllTypes() []Type {
	types := make([]Type, 0, numTypes)
	for t := Type(0); t < numTypes; t++ {
		types = append(types, t)
	}
	return types
}

// ValidateType returns a value-kind error if t is outside the enumeration.
func ValidateType(t Type) error {
	if !t.Valid() {
		return errors.Newf(errors.ErrValueKind, "message", "ValidateType", "invalid message type %d", int(t))
	}
	return nil
}

// ValidateTypes validates every member of types, reporting the first failure.
func ValidateTypes(types []Type) error {
	for _, t := range types {
		if err := ValidateType(t); err != nil {
			return err
		}
	}
	return nil
}
