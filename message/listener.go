package message

import (
	"cmp"
	"encoding/json"
	"fmt"
	"net/netip"
	"strings"
	"unicode"

	"github.com/ukhas/habitat-sub001/errors"
)

// Listener identifies the origin of a message.
//
// A Listener is either an opaque identifier (NewIdentifier) or a radio
// callsign with the IP address it connected from (NewListener). Equality and
// ordering consider only the identifying field: the callsign, or the
// identifier when there is no callsign. The IP never affects identity.
type Listener struct {
	id       string
	callsign string
	ip       netip.Addr
}

// NewIdentifier creates a listener identified by an opaque, non-empty string.
func NewIdentifier(id string) (*Listener, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.Newf(errors.ErrValueKind, "Listener", "NewIdentifier", "empty identifier")
	}
	return &Listener{id: id}, nil
}

// NewListener creates a listener from a callsign and an IP address.
// The callsign must be non-empty and alphanumeric; it is stored upper case.
func NewListener(callsign, ip string) (*Listener, error) {
	if callsign == "" {
		return nil, errors.Newf(errors.ErrValueKind, "Listener", "NewListener", "empty callsign")
	}
	for _, r := range callsign {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return nil, errors.Newf(errors.ErrValueKind, "Listener", "NewListener",
				"callsign %q must be alphanumeric", callsign)
		}
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, errors.Newf(errors.ErrValueKind, "Listener", "NewListener", "invalid ip %q", ip)
	}

	return &Listener{callsign: strings.ToUpper(callsign), ip: addr}, nil
}

// Callsign returns the upper-case callsign, or "" for identifier listeners.
func (l *Listener) Callsign() string { return l.callsign }

// IP returns the listener's address. It is the zero Addr for identifiers.
func (l *Listener) IP() netip.Addr { return l.ip }

// ID returns the identifying field: callsign if set, identifier otherwise.
func (l *Listener) ID() string {
	if l.callsign != "" {
		return l.callsign
	}
	return l.id
}

// Equal reports whether other is a Listener with the same identifying field.
// Comparing against any other type returns false. The kind of listener is
// not part of its identity: an identifier equals a callsign listener when
// the identifier matches the upper-cased callsign, so NewIdentifier("ABC")
// equals NewListener("abc", ip) but NewIdentifier("abc") does not.
func (l *Listener) Equal(other any) bool {
	if l == nil {
		return false
	}
	var o *Listener
	switch v := other.(type) {
	case *Listener:
		o = v
	case Listener:
		o = &v
	default:
		return false
	}
	if o == nil {
		return false
	}
	return l.ID() == o.ID()
}

// Compare orders listeners by identifying field. A nil listener sorts
// before any other and compares equal to nil.
func (l *Listener) Compare(other *Listener) int {
	switch {
	case l == nil && other == nil:
		return 0
	case l == nil:
		return -1
	case other == nil:
		return 1
	}
	return cmp.Compare(l.ID(), other.ID())
}

// String renders "<callsign>@<ip>" or the identifier.
func (l *Listener) String() string {
	if l.callsign != "" {
		return fmt.Sprintf("%s@%s", l.callsign, l.ip)
	}
	return l.id
}

type listenerJSON struct {
	ID       string `json:"id,omitempty"`
	Callsign string `json:"callsign,omitempty"`
	IP       string `json:"ip,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (l *Listener) MarshalJSON() ([]byte, error) {
	out := listenerJSON{ID: l.id, Callsign: l.callsign}
	if l.ip.IsValid() {
		out.IP = l.ip.String()
	}
	return json.Marshal(out)
}
