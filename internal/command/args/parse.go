package args

import (
	"strconv"
	"strings"
	"unicode"
)

// Spec declares one argument a command accepts.
type Spec struct {
	Name        string
	Description string
	Kind        Kind
	Required    bool
}

// Tokenize splits message text on whitespace, keeping double-quoted runs
// together. An unterminated quote extends to the end of the text.
func Tokenize(text string) []string {
	var (
		tokens  []string
		cur     strings.Builder
		inQuote bool
		hasTok  bool
	)
	for _, r := range text {
		switch {
		case r == '"':
			inQuote = !inQuote
			hasTok = true
		case unicode.IsSpace(r) && !inQuote:
			if hasTok {
				tokens = append(tokens, cur.String())
				cur.Reset()
				hasTok = false
			}
		default:
			cur.WriteRune(r)
			hasTok = true
		}
	}
	if hasTok {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

// FromText binds message text to the declared specs positionally. The last
// declared string argument absorbs any remaining tokens. Tokens beyond the
// specs are returned as String values named by their position.
func FromText(text string, specs []Spec) []Value {
	tokens := Tokenize(text)
	vals := make([]Value, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		if i >= len(specs) {
			vals = append(vals, String{Key: strconv.Itoa(i), V: tokens[i]})
			continue
		}
		spec := specs[i]
		if i == len(specs)-1 && spec.Kind == KindString {
			vals = append(vals, String{Key: spec.Name, V: strings.Join(tokens[i:], " ")})
			break
		}
		vals = append(vals, fromToken(spec, tokens[i]))
	}
	return vals
}

// fromToken converts a token to the declared kind, keeping it as a String
// when it does not parse.
func fromToken(spec Spec, tok string) Value {
	switch spec.Kind {
	case KindInteger:
		if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
			return Integer{Key: spec.Name, V: n}
		}
	case KindNumber:
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			return Number{Key: spec.Name, V: f}
		}
	case KindBoolean:
		if b, err := strconv.ParseBool(tok); err == nil {
			return Boolean{Key: spec.Name, V: b}
		}
	case KindUser:
		if id, ok := mentionID(tok, "<@", ">"); ok {
			return User{Key: spec.Name, ID: strings.TrimPrefix(id, "!")}
		}
	case KindChannel:
		if id, ok := mentionID(tok, "<#", ">"); ok {
			return Channel{Key: spec.Name, ID: id}
		}
	case KindRole:
		if id, ok := mentionID(tok, "<@&", ">"); ok {
			return Role{Key: spec.Name, ID: id}
		}
	case KindMentionable:
		if id, ok := mentionID(tok, "<@", ">"); ok {
			return Mentionable{Key: spec.Name, ID: strings.TrimPrefix(strings.TrimPrefix(id, "&"), "!")}
		}
	case KindString, KindAttachment:
	}
	return String{Key: spec.Name, V: tok}
}

func mentionID(tok, open, close string) (string, bool) {
	if !strings.HasPrefix(tok, open) || !strings.HasSuffix(tok, close) {
		return "", false
	}
	id := tok[len(open) : len(tok)-len(close)]
	return id, id != ""
}
