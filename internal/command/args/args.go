// Package args holds the typed argument values handed to command bodies.
//
// A Value is a closed set of variants, one per argument kind. Code that needs
// to branch on the kind does so with a type switch over the concrete types;
// Kind is provided for declarations and for mapping to transport option types.
package args

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownKind is returned when a transport hands over an argument of a kind
// this package does not model.
var ErrUnknownKind = errors.New("unknown argument kind")

// Kind identifies the variant of a Value.
type Kind int

const (
	KindString Kind = iota + 1
	KindInteger
	KindNumber
	KindBoolean
	KindUser
	KindChannel
	KindRole
	KindMentionable
	KindAttachment
)

var kindNames = map[Kind]string{
	KindString:      "string",
	KindInteger:     "integer",
	KindNumber:      "number",
	KindBoolean:     "boolean",
	KindUser:        "user",
	KindChannel:     "channel",
	KindRole:        "role",
	KindMentionable: "mentionable",
	KindAttachment:  "attachment",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind converts a declaration name such as "integer" into a Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return KindString, nil
	}
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Value is one named argument. The unexported method seals the set of variants.
type Value interface {
	Name() string
	Kind() Kind
	value()
}

type String struct {
	Key string
	V   string
}

type Integer struct {
	Key string
	V   int64
}

type Number struct {
	Key string
	V   float64
}

type Boolean struct {
	Key string
	V   bool
}

// User, Channel, Role, Mentionable and Attachment carry snowflake IDs.
type User struct {
	Key string
	ID  string
}

type Channel struct {
	Key string
	ID  string
}

type Role struct {
	Key string
	ID  string
}

type Mentionable struct {
	Key string
	ID  string
}

type Attachment struct {
	Key string
	ID  string
}

func (v String) Name() string      { return v.Key }
func (v Integer) Name() string     { return v.Key }
func (v Number) Name() string      { return v.Key }
func (v Boolean) Name() string     { return v.Key }
func (v User) Name() string        { return v.Key }
func (v Channel) Name() string     { return v.Key }
func (v Role) Name() string        { return v.Key }
func (v Mentionable) Name() string { return v.Key }
func (v Attachment) Name() string  { return v.Key }

func (String) Kind() Kind      { return KindString }
func (Integer) Kind() Kind     { return KindInteger }
func (Number) Kind() Kind      { return KindNumber }
func (Boolean) Kind() Kind     { return KindBoolean }
func (User) Kind() Kind        { return KindUser }
func (Channel) Kind() Kind     { return KindChannel }
func (Role) Kind() Kind        { return KindRole }
func (Mentionable) Kind() Kind { return KindMentionable }
func (Attachment) Kind() Kind  { return KindAttachment }

func (String) value()      {}
func (Integer) value()     {}
func (Number) value()      {}
func (Boolean) value()     {}
func (User) value()        {}
func (Channel) value()     {}
func (Role) value()        {}
func (Mentionable) value() {}
func (Attachment) value()  {}

// Format renders a value the way a user would have typed it in a message.
func Format(v Value) string {
	switch v := v.(type) {
	case String:
		return v.V
	case Integer:
		return strconv.FormatInt(v.V, 10)
	case Number:
		return strconv.FormatFloat(v.V, 'f', -1, 64)
	case Boolean:
		return strconv.FormatBool(v.V)
	case User:
		return "<@" + v.ID + ">"
	case Channel:
		return "<#" + v.ID + ">"
	case Role:
		return "<@&" + v.ID + ">"
	case Mentionable:
		return "<@" + v.ID + ">"
	case Attachment:
		return v.ID
	case nil:
		return ""
	}
	panic(fmt.Sprintf("args: unhandled value type %T", v))
}

// Lookup returns the first value with the given name.
func Lookup(vals []Value, name string) (Value, bool) {
	for _, v := range vals {
		if v.Name() == name {
			return v, true
		}
	}
	return nil, false
}

// StringOf returns the formatted value of the named argument, or "" when absent.
func StringOf(vals []Value, name string) string {
	v, ok := Lookup(vals, name)
	if !ok {
		return ""
	}
	return Format(v)
}

// Join formats every value and joins them with single spaces.
func Join(vals []Value) string {
	parts := make([]string, 0, len(vals))
	for _, v := range vals {
		parts = append(parts, Format(v))
	}
	return strings.Join(parts, " ")
}
