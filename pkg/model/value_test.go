package model

import (
	"encoding/json"
	"testing"
)

func TestNormalized(t *testing.T) {
	cases := []struct {
		name string
		in   Value
		want string
	}{
		{"null", Null(), ""},
		{"string trimmed", String("  hi  "), "hi"},
		{"integer number", Number(30), "30"},
		{"fractional number", Number(12.5), "12.5"},
		{"empty string", String(""), ""},
	}
	for _, tc := range cases {
		if got := tc.in.Normalized(); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestValueJSONRoundTrip(t *testing.T) {
	row := Row{
		"s": String("Ann"),
		"n": Number(30),
		"z": Null(),
	}

	data, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Row
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded["s"].Kind() != KindString || decoded["s"].Normalized() != "Ann" {
		t.Fatalf("string cell lost in round trip: %+v", decoded["s"])
	}
	if decoded["n"].Kind() != KindNumber || decoded["n"].Normalized() != "30" {
		t.Fatalf("number cell lost in round trip: %+v", decoded["n"])
	}
	if !decoded["z"].IsNull() {
		t.Fatalf("null cell lost in round trip: %+v", decoded["z"])
	}
}

func TestValueUnmarshalRejectsComposites(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`[1,2]`), &v); err == nil {
		t.Fatalf("expected error for array cell")
	}
	if err := json.Unmarshal([]byte(`{"a":1}`), &v); err == nil {
		t.Fatalf("expected error for object cell")
	}
	if err := json.Unmarshal([]byte(`true`), &v); err == nil {
		t.Fatalf("expected error for boolean cell")
	}
}

func TestRowEquivalent(t *testing.T) {
	columns := []string{"name", "age"}

	a := Row{"name": String("Ann"), "age": String("30")}
	b := Row{"name": String(" Ann "), "age": Number(30)}
	if !a.Equivalent(b, columns) {
		t.Fatalf("normalization-equal rows should be equivalent")
	}

	c := Row{"name": String("Ann"), "age": String("31")}
	if a.Equivalent(c, columns) {
		t.Fatalf("different values must not be equivalent")
	}

	// Keys outside the declared columns are ignored.
	d := Row{"name": String("Ann"), "age": String("30"), "extra": String("x")}
	if !a.Equivalent(d, columns) {
		t.Fatalf("undeclared keys must not affect equivalence")
	}
}

func TestRowIsBlank(t *testing.T) {
	columns := []string{"a", "b"}
	if !(Row{"a": String("  "), "b": Null()}).IsBlank(columns) {
		t.Fatalf("whitespace and nulls are blank")
	}
	if (Row{"a": String("x")}).IsBlank(columns) {
		t.Fatalf("a populated cell is not blank")
	}
}
