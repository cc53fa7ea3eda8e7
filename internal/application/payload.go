package application

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedPayload is returned when a raw upstream body is not a JSON document.
var ErrMalformedPayload = errors.New("malformed payload")

// nodeKind tags the shape held by a payloadNode. kindSkip stands for a value
// that is absent or of a shape the reader did not ask for.
type nodeKind int

const (
	kindSkip nodeKind = iota
	kindNull
	kindBool
	kindNumber
	kindString
	kindArray
	kindObject
)

// payloadNode is a decoded upstream JSON value. Accessors never panic: asking
// an object for a list, or a string for a field, yields the skip variant.
type payloadNode struct {
	kind nodeKind
	b    bool
	num  json.Number
	str  string
	arr  []payloadNode
	obj  map[string]payloadNode
}

var skipNode = payloadNode{kind: kindSkip}

// parsePayload decodes raw into a payloadNode, preserving number precision.
func parsePayload(raw []byte) (payloadNode, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return skipNode, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	return nodeFromValue(v), nil
}

func nodeFromValue(v any) payloadNode {
	switch x := v.(type) {
	case nil:
		return payloadNode{kind: kindNull}
	case bool:
		return payloadNode{kind: kindBool, b: x}
	case json.Number:
		return payloadNode{kind: kindNumber, num: x}
	case string:
		return payloadNode{kind: kindString, str: x}
	case []any:
		arr := make([]payloadNode, len(x))
		for i, e := range x {
			arr[i] = nodeFromValue(e)
		}
		return payloadNode{kind: kindArray, arr: arr}
	case map[string]any:
		obj := make(map[string]payloadNode, len(x))
		for k, e := range x {
			obj[k] = nodeFromValue(e)
		}
		return payloadNode{kind: kindObject, obj: obj}
	default:
		return skipNode
	}
}

// present reports whether the node carries a non-null value.
func (n payloadNode) present() bool {
	return n.kind != kindSkip && n.kind != kindNull
}

func (n payloadNode) isObject() bool { return n.kind == kindObject }

// field returns the named member of an object node.
func (n payloadNode) field(name string) payloadNode {
	if n.kind != kindObject {
		return skipNode
	}
	v, ok := n.obj[name]
	if !ok {
		return skipNode
	}
	return v
}

// first returns the first present member among names.
func (n payloadNode) first(names ...string) payloadNode {
	for _, name := range names {
		if v := n.field(name); v.present() {
			return v
		}
	}
	return skipNode
}

// list returns the elements of an array node, or nil for any other shape.
func (n payloadNode) list() []payloadNode {
	if n.kind != kindArray {
		return nil
	}
	return n.arr
}

// asString coerces strings and numbers to text.
func (n payloadNode) asString() (string, bool) {
	switch n.kind {
	case kindString:
		return n.str, true
	case kindNumber:
		return n.num.String(), true
	default:
		return "", false
	}
}

// stringOr returns the coerced string or "".
func (n payloadNode) stringOr() string {
	s, _ := n.asString()
	return s
}

// asInt coerces numbers and numeric strings to an integer. Fractions are truncated.
func (n payloadNode) asInt() (int64, bool) {
	var text string
	switch n.kind {
	case kindNumber:
		text = n.num.String()
	case kindString:
		text = strings.TrimSpace(n.str)
	default:
		return 0, false
	}

	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

func (n payloadNode) intOr() int {
	i, _ := n.asInt()
	return int(i)
}

// asFloat coerces numbers and numeric strings to a float.
func (n payloadNode) asFloat() (float64, bool) {
	var text string
	switch n.kind {
	case kindNumber:
		text = n.num.String()
	case kindString:
		text = strings.TrimSpace(n.str)
	default:
		return 0, false
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (n payloadNode) floatOr() float64 {
	f, _ := n.asFloat()
	return f
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
// 1e12 ms is September 2001; 1e12 s is far beyond any plausible timestamp.
const epochMillisThreshold = 1e12

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// asTime coerces ISO-8601 strings and epoch numbers to a UTC timestamp.
func (n payloadNode) asTime() (time.Time, bool) {
	switch n.kind {
	case kindString:
		s := strings.TrimSpace(n.str)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return epochTime(f)
		}
		return time.Time{}, false
	case kindNumber:
		f, err := n.num.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return epochTime(f)
	default:
		return time.Time{}, false
	}
}

func epochTime(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return time.Time{}, false
	}
	if f > epochMillisThreshold {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

// asHandle reduces an author or actor value to a user handle: strings are
// taken as is, objects yield username then login.
func (n payloadNode) asHandle() string {
	switch n.kind {
	case kindString:
		return n.str
	case kindObject:
		return n.first("username", "login").stringOr()
	default:
		return ""
	}
}

var runNumberInName = regexp.MustCompile(`(?i)Run\s+(\d+)`)

// runNumberFromName extracts n from names such as "Deploy Run 42".
func runNumberFromName(name string) (int64, bool) {
	m := runNumberInName.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
