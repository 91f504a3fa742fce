package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRow(t *testing.T) {
	t.Parallel()

	r := NewRow([]string{"email", "company_name", "city"}, []string{"a@acme.com", "Acme"})
	assert.Equal(t, []string{"email", "company_name", "city"}, r.Keys())
	assert.Equal(t, "Acme", r.Value("company_name"))

	v, ok := r.Get("city")
	assert.True(t, ok)
	assert.Equal(t, "", v)

	_, ok = r.Get("state")
	assert.False(t, ok)
}

func TestRowFromMap_Order(t *testing.T) {
	t.Parallel()

	r := RowFromMap(map[string]string{"zeta": "1", "alpha": "2", "email": "e"}, []string{"email", "missing"})
	assert.Equal(t, []string{"email", "alpha", "zeta"}, r.Keys())
}

func TestRow_SetAppendsOnce(t *testing.T) {
	t.Parallel()

	var r Row
	r.Set("a", "1")
	r.Set("b", "2")
	r.Set("a", "3")
	assert.Equal(t, []string{"a", "b"}, r.Keys())
	assert.Equal(t, "3", r.Value("a"))
	assert.Equal(t, 2, r.Len())
}

func TestRow_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	r := NewRow([]string{"a"}, []string{"1"})
	c := r.Clone()
	c.Set("a", "changed")
	c.Set("b", "new")
	assert.Equal(t, "1", r.Value("a"))
	assert.False(t, r.Has("b"))
}

func TestRow_JSONPreservesOrder(t *testing.T) {
	t.Parallel()

	in := `{"zeta":"z","alpha":"a","count":42,"none":null}`
	var r Row
	require.NoError(t, json.Unmarshal([]byte(in), &r))
	assert.Equal(t, []string{"zeta", "alpha", "count", "none"}, r.Keys())
	assert.Equal(t, "42", r.Value("count"))
	assert.Equal(t, "", r.Value("none"))

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":"z","alpha":"a","count":"42","none":""}`, string(out))
}

func TestRow_Reordered(t *testing.T) {
	t.Parallel()

	r := NewRow([]string{"zip", "email", "company_name"}, []string{"10001", "a@x", "Acme"})
	got := r.Reordered([]string{"email", "missing"})
	assert.Equal(t, []string{"email", "zip", "company_name"}, got.Keys())
	assert.Equal(t, "Acme", got.Value("company_name"))
	assert.Equal(t, []string{"zip", "email", "company_name"}, r.Keys(), "original untouched")
	assert.Equal(t, r.Keys(), r.Reordered(nil).Keys())
}

func TestRow_UnmarshalRejectsArray(t *testing.T) {
	t.Parallel()

	var r Row
	err := json.Unmarshal([]byte(`["a"]`), &r)
	require.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "Acme", "Acme"},
		{"float", 12.5, "12.5"},
		{"bool", true, "true"},
		{"list", []any{"a", 2.0}, "a; 2"},
		{"object", map[string]any{"k": "v"}, `{"k":"v"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}

func TestPresenceRules(t *testing.T) {
	t.Parallel()

	assert.False(t, IsPresent(nil))
	assert.False(t, IsPresent(""))
	assert.True(t, IsPresent(" "))
	assert.True(t, IsPresent(0.0))

	assert.True(t, IsEmptyValue(nil))
	assert.True(t, IsEmptyValue("   "))
	assert.False(t, IsEmptyValue(false))
}

func TestRowFromAny(t *testing.T) {
	r := RowFromAny(map[string]any{"seats": 12.0, "active": true, "email": "a@b.test", "note": nil}, []string{"email"})
	assert.Equal(t, []string{"email", "active", "note", "seats"}, r.Keys())
	assert.Equal(t, "12", r.Value("seats"))
	assert.Equal(t, "true", r.Value("active"))
	assert.Equal(t, "", r.Value("note"))
}
