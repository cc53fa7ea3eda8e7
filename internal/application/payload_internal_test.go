package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) payloadNode {
	t.Helper()
	n, err := parsePayload([]byte(raw))
	require.NoError(t, err)
	return n
}

func TestPayloadNode_AsInt(t *testing.T) {
	n := mustParse(t, `{"a": 42, "b": "17", "c": " 9 ", "d": 3.9, "e": "x", "f": null, "g": true, "h": 20118081300}`)

	tests := []struct {
		field  string
		want   int64
		wantOK bool
	}{
		{"a", 42, true},
		{"b", 17, true},
		{"c", 9, true},
		{"d", 3, true},
		{"e", 0, false},
		{"f", 0, false},
		{"g", 0, false},
		{"h", 20118081300, true},
		{"missing", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got, ok := n.field(tt.field).asInt()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPayloadNode_AsTime(t *testing.T) {
	want := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	n := mustParse(t, `{
		"iso": "2026-01-10T09:00:00Z",
		"offset": "2026-01-10T10:00:00+01:00",
		"naive": "2026-01-10T09:00:00",
		"space": "2026-01-10 09:00:00",
		"millis": 1768035600000,
		"seconds": 1768035600,
		"numeric_string": "1768035600",
		"empty": "",
		"garbage": "yesterday",
		"negative": -5
	}`)

	for _, field := range []string{"iso", "offset", "naive", "space", "millis", "seconds", "numeric_string"} {
		got, ok := n.field(field).asTime()
		assert.True(t, ok, field)
		assert.Equal(t, want, got, field)
	}

	for _, field := range []string{"empty", "garbage", "negative", "missing"} {
		_, ok := n.field(field).asTime()
		assert.False(t, ok, field)
	}
}

func TestPayloadNode_AsHandle(t *testing.T) {
	n := mustParse(t, `{"s": "alice", "u": {"username": "bob", "login": "ignored"}, "l": {"login": "carol"}, "x": 5}`)

	assert.Equal(t, "alice", n.field("s").asHandle())
	assert.Equal(t, "bob", n.field("u").asHandle())
	assert.Equal(t, "carol", n.field("l").asHandle())
	assert.Empty(t, n.field("x").asHandle())
}

func TestPayloadNode_ShapeMismatchIsSkip(t *testing.T) {
	n := mustParse(t, `{"list": {"not": "a list"}, "obj": [1, 2]}`)

	assert.Nil(t, n.field("list").list())
	assert.False(t, n.field("obj").field("x").present())
	assert.False(t, n.field("list").field("not").field("deeper").present())
}

func TestRunNumberFromName(t *testing.T) {
	got, ok := runNumberFromName("Deploy Run 77")
	assert.True(t, ok)
	assert.Equal(t, int64(77), got)

	got, ok = runNumberFromName("deploy run   8")
	assert.True(t, ok)
	assert.Equal(t, int64(8), got)

	_, ok = runNumberFromName("CI")
	assert.False(t, ok)
}

func TestCacheKey(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 12, 30, 15, 0, time.UTC)
	assert.Equal(t, "fetch:repo:r1:2026-01-01T00:00:00.000Z:2026-01-31T12:30:15.000Z", cacheKey("r1", from, to))
}
