package simplecache

import (
	"encoding/json"
	"testing"
)

func TestDeriveKey(t *testing.T) {
	type filter struct {
		Age    int    `json:"age"`
		Status string `json:"status"`
	}
	type query struct {
		Name   string `json:"name"`
		Age    int    `json:"age"`
		Filter filter `json:"filter"`
	}

	tests := []struct {
		name    string
		options any
		exclude []string
		alt     any
		want    string
	}{
		{
			name:    "struct fields are sorted",
			options: person{Age: 6, Name: "Bill"},
			want:    `{"age":6,"name":"Bill"}`,
		},
		{
			name:    "map matches struct",
			options: map[string]any{"name": "Bill", "age": 6},
			want:    `{"age":6,"name":"Bill"}`,
		},
		{
			name:    "raw json matches struct",
			options: json.RawMessage(`{"name":"Bill","age":6}`),
			want:    `{"age":6,"name":"Bill"}`,
		},
		{
			name:    "top level exclusion",
			options: person{Age: 6, Name: "Bill"},
			exclude: []string{"age"},
			want:    `{"name":"Bill"}`,
		},
		{
			name:    "nested exclusion",
			options: query{Name: "Bill", Age: 6, Filter: filter{Age: 3, Status: "open"}},
			exclude: []string{"age"},
			want:    `{"filter":{"status":"open"},"name":"Bill"}`,
		},
		{
			name:    "arrays are not walked",
			options: map[string]any{"a": 1, "list": []any{map[string]any{"a": 2, "b": 3}}},
			exclude: []string{"a"},
			want:    `{"list":[{"a":2,"b":3}]}`,
		},
		{
			name:    "excluding everything",
			options: person{Age: 6, Name: "Bill"},
			exclude: []string{"age", "name"},
			want:    `{}`,
		},
		{
			name:    "unknown exclusion is harmless",
			options: person{Age: 6, Name: "Bill"},
			exclude: []string{"missing"},
			want:    `{"age":6,"name":"Bill"}`,
		},
		{
			name:    "alt key replaces options",
			options: person{Age: 6, Name: "Bill"},
			alt:     map[string]string{"name": "tom"},
			want:    `{"name":"tom"}`,
		},
		{
			name:    "alt key ignores exclusions",
			options: person{Age: 6, Name: "Bill"},
			exclude: []string{"name"},
			alt:     map[string]string{"name": "tom"},
			want:    `{"name":"tom"}`,
		},
		{
			name: "scalar alt key",
			alt:  "tom",
			want: `"tom"`,
		},
		{
			name: "nil options",
			want: `null`,
		},
		{
			name:    "large integers keep precision",
			options: map[string]uint64{"id": 12345678901234567890},
			want:    `{"id":12345678901234567890}`,
		},
		{
			name:    "html characters are not escaped",
			options: map[string]string{"q": "<a&b>"},
			want:    `{"q":"<a&b>"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeriveKey(tt.options, tt.exclude, tt.alt)
			if err != nil {
				t.Fatalf("DeriveKey() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("DeriveKey() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	opts := map[string]any{"z": 1, "a": map[string]any{"y": 2, "b": 3}, "m": []int{3, 1, 2}}
	first, err := DeriveKey(opts, nil, nil)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	for range 20 {
		got, _ := DeriveKey(opts, nil, nil)
		if got != first {
			t.Fatalf("key changed between calls: %s vs %s", got, first)
		}
	}
	if first != `{"a":{"b":3,"y":2},"m":[3,1,2],"z":1}` {
		t.Fatalf("unexpected key %s", first)
	}
}

func TestDeriveKey_Unencodable(t *testing.T) {
	if _, err := DeriveKey(map[string]any{"fn": func() {}}, nil, nil); err == nil {
		t.Fatal("expected error for unencodable options")
	}
}
