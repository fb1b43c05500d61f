// ABOUTME: MenuPath is the parsed form of a settings callback token such as "s♞city♞del♞Москва"
// ABOUTME: Tokens are parsed at the transport boundary and serialized back only when building buttons

package settings

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
)

// ErrMalformedPath is returned for tokens that name no menu.
var ErrMalformedPath = errors.New("malformed menu path")

// Separator joins path segments in a token.
const Separator = "♞"

// MaxTokenBytes is the transport's limit on callback data.
const MaxTokenBytes = 64

// digestPrefix marks a value encoded as a digest of the set member.
const digestPrefix = "#"

// Kind identifies a settings menu.
type Kind int

const (
	Root Kind = iota
	CityList
	CityAdd
	CityDelete
	CityDeleteAll
	CityDeleteOne
	SubList
	SubAdd
	SubAddOne
	SubDelete
	SubDeleteAll
	SubDeleteOne
)

var kindNames = map[Kind]string{
	Root:          "root",
	CityList:      "city-list",
	CityAdd:       "city-add",
	CityDelete:    "city-delete",
	CityDeleteAll: "city-delete-all",
	CityDeleteOne: "city-delete-one",
	SubList:       "sub-list",
	SubAdd:        "sub-add",
	SubAddOne:     "sub-add-one",
	SubDelete:     "sub-delete",
	SubDeleteAll:  "sub-delete-all",
	SubDeleteOne:  "sub-delete-one",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// segments maps each value-less kind to its token segments after the root.
var segments = map[Kind][]string{
	Root:          nil,
	CityList:      {"city"},
	CityAdd:       {"city", "add"},
	CityDelete:    {"city", "del"},
	CityDeleteAll: {"city", "delall"},
	CityDeleteOne: {"city", "del"},
	SubList:       {"sub"},
	SubAdd:        {"sub", "add"},
	SubAddOne:     {"sub", "add"},
	SubDelete:     {"sub", "del"},
	SubDeleteAll:  {"sub", "delall"},
	SubDeleteOne:  {"sub", "del"},
}

// MenuPath is one position in the settings dialog. Value is set only for
// the *One kinds and may be a digest reference ("#9f2c…") to a member of the set.
type MenuPath struct {
	Kind  Kind
	Value string
}

// HasValue reports whether the kind carries a value segment.
func (k Kind) HasValue() bool {
	return k == CityDeleteOne || k == SubAddOne || k == SubDeleteOne
}

// Mutates reports whether rendering the kind changes the client record.
func (k Kind) Mutates() bool {
	switch k {
	case CityAdd, CityDeleteAll, CityDeleteOne, SubAddOne, SubDeleteAll, SubDeleteOne:
		return true
	}
	return false
}

// ParsePath parses a callback token.
func ParsePath(token string) (MenuPath, error) {
	parts := strings.Split(token, Separator)
	if parts[0] != "s" {
		return MenuPath{}, fmt.Errorf("%w: %q", ErrMalformedPath, token)
	}
	rest := parts[1:]

	if len(rest) > 2 {
		value := strings.Join(rest[2:], Separator)
		if value == "" {
			return MenuPath{}, fmt.Errorf("%w: empty value in %q", ErrMalformedPath, token)
		}
		switch rest[0] + Separator + rest[1] {
		case "city" + Separator + "del":
			return MenuPath{Kind: CityDeleteOne, Value: value}, nil
		case "sub" + Separator + "del":
			return MenuPath{Kind: SubDeleteOne, Value: value}, nil
		case "sub" + Separator + "add":
			return MenuPath{Kind: SubAddOne, Value: value}, nil
		}
		return MenuPath{}, fmt.Errorf("%w: %q", ErrMalformedPath, token)
	}

	if len(rest) == 0 {
		return MenuPath{Kind: Root}, nil
	}
	key := strings.Join(rest, Separator)
	for kind, segs := range segments {
		if kind == Root || kind.HasValue() {
			continue
		}
		if strings.Join(segs, Separator) == key {
			return MenuPath{Kind: kind}, nil
		}
	}
	return MenuPath{}, fmt.Errorf("%w: %q", ErrMalformedPath, token)
}

// String serializes the path to its callback token.
func (p MenuPath) String() string {
	parts := append([]string{"s"}, segments[p.Kind]...)
	if p.Kind.HasValue() {
		parts = append(parts, p.Value)
	}
	return strings.Join(parts, Separator)
}

// Parent is the path with its last segment stripped. Root has no parent.
func (p MenuPath) Parent() (MenuPath, bool) {
	switch p.Kind {
	case Root:
		return MenuPath{}, false
	case CityList, SubList:
		return MenuPath{Kind: Root}, true
	case CityAdd, CityDelete, CityDeleteAll:
		return MenuPath{Kind: CityList}, true
	case CityDeleteOne:
		return MenuPath{Kind: CityDelete}, true
	case SubAdd, SubDelete, SubDeleteAll:
		return MenuPath{Kind: SubList}, true
	case SubAddOne:
		return MenuPath{Kind: SubAdd}, true
	case SubDeleteOne:
		return MenuPath{Kind: SubDelete}, true
	}
	return MenuPath{}, false
}

// valuePath builds a *One path for value. Values whose token would not fit
// the callback limit, or that could be mistaken for a digest reference,
// are encoded as a digest of the value.
func valuePath(kind Kind, value string) MenuPath {
	p := MenuPath{Kind: kind, Value: value}
	if len(p.String()) <= MaxTokenBytes && !strings.HasPrefix(value, digestPrefix) {
		return p
	}
	return MenuPath{Kind: kind, Value: digestPrefix + digest(value)}
}

// resolveValue turns a path value back into the set member it names. A
// digest that matches no current member means the set changed after the
// menu was rendered.
func resolveValue(raw string, set []string) (string, error) {
	if !strings.HasPrefix(raw, digestPrefix) {
		return raw, nil
	}
	want := raw[len(digestPrefix):]
	for _, v := range set {
		if digest(v) == want {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q names no current value", ErrMalformedPath, raw)
}

func digest(value string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(value))
	return fmt.Sprintf("%016x", h.Sum64())
}
