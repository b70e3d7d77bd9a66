package datapackage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSON(t *testing.T) {
	d, err := Decode([]byte(`{
		"title": "A & B",
		"name": "a",
		"resources": [ { "path": "data/x.csv", "name": "x" } ],
		"count": 3.0
	}`))
	require.NoError(t, err)

	got, err := CanonicalJSON(d)
	require.NoError(t, err)
	assert.Equal(t, `{"count":3.0,"name":"a","resources":[{"name":"x","path":"data/x.csv"}],"title":"A & B"}`, string(got))
}

func TestHash_IgnoresFormatting(t *testing.T) {
	compact, err := Decode([]byte(`{"b":[1,2],"a":{"y":true,"x":null}}`))
	require.NoError(t, err)
	spaced, err := Decode([]byte("{\n  \"a\": {\"x\": null, \"y\": true},\n  \"b\": [1, 2]\n}\n"))
	require.NoError(t, err)

	h1, err := Hash(compact)
	require.NoError(t, err)
	h2, err := Hash(spaced)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHash_DetectsContentChange(t *testing.T) {
	h1, err := Hash(Descriptor{"name": "a", "version": "1"})
	require.NoError(t, err)
	h2, err := Hash(Descriptor{"name": "a", "version": "2"})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestHash_RoundTrip(t *testing.T) {
	original, err := Decode([]byte(`{"name":"gemeinden","bfs":[261,273.50],"meta":{"ü":"<tag>"}}`))
	require.NoError(t, err)

	before, err := Hash(original)
	require.NoError(t, err)

	pretty, err := MarshalPretty(original)
	require.NoError(t, err)
	reloaded, err := Decode(pretty)
	require.NoError(t, err)

	after, err := Hash(reloaded)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMarshalPretty(t *testing.T) {
	got, err := MarshalPretty(Descriptor{"name": "a", "resources": []any{map[string]any{"name": "r"}}})
	require.NoError(t, err)
	want := "{\n    \"name\": \"a\",\n    \"resources\": [\n        {\n            \"name\": \"r\"\n        }\n    ]\n}\n"
	assert.Equal(t, want, string(got))
}

func TestHash_NormalizesNumbers(t *testing.T) {
	hashOf := func(doc string) string {
		t.Helper()
		d, err := Decode([]byte(doc))
		require.NoError(t, err)
		h, err := Hash(d)
		require.NoError(t, err)
		return h
	}

	assert.Equal(t, hashOf(`{"v": 1.5}`), hashOf(`{"v": 1.50}`))
	assert.Equal(t, hashOf(`{"v": [1000.0]}`), hashOf(`{"v": [1e3]}`))
	assert.Equal(t, hashOf(`{"v": {"w": 0.00001}}`), hashOf(`{"v": {"w": 1E-5}}`))
	assert.NotEqual(t, hashOf(`{"v": 1000}`), hashOf(`{"v": 1000.0}`), "integers and floats stay distinct")
	assert.NotEqual(t, hashOf(`{"v": 1.5}`), hashOf(`{"v": 1.25}`))
}

func TestCanonicalJSON_Numbers(t *testing.T) {
	d, err := Decode([]byte(`{"a": 2.500, "b": 1e3, "c": 12345678901234567890, "d": 1e20, "e": -0.0001}`))
	require.NoError(t, err)

	got, err := CanonicalJSON(d)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2.5,"b":1000.0,"c":12345678901234567890,"d":1e+20,"e":-0.0001}`, string(got))

	pretty, err := MarshalPretty(d)
	require.NoError(t, err)
	assert.Contains(t, string(pretty), `"a": 2.500`, "files keep the numbers as written")
}
