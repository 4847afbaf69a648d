package canonical

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func samplePayload() Payload {
	return Payload{
		Ticker:        "SPY",
		Prediction:    1,
		PCommit:       decimal.RequireFromString("450.25"),
		CommitBarTS:   "2024-01-15T15:55:00-05:00",
		CommitTimeUTC: "2024-01-15T20:55:12Z",
		Salt:          "00112233445566778899aabbccddeeff",
		Context:       "2024-01-15|SPY|NYSE|close",
	}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"whole number", "100", "100.0000"},
		{"two places", "450.25", "450.2500"},
		{"four places", "450.1234", "450.1234"},
		{"trailing zero input", "50.10", "50.1000"},
		{"negative", "-1.23", "-1.2300"},
		{"zero", "0", "0.0000"},
		{"large no exponent", "123456789.5", "123456789.5000"},
		{"small no exponent", "0.0001", "0.0001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatPrice(decimal.RequireFromString(tt.in))
			if got != tt.want {
				t.Errorf("FormatPrice(%s) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncode_Deterministic(t *testing.T) {
	p := samplePayload()

	first, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		got, err := Encode(samplePayload())
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		if string(got) != string(first) {
			t.Errorf("Encode() not deterministic: %s != %s", got, first)
		}
	}
}

func TestEncode_KeysSortedCompact(t *testing.T) {
	out, err := Encode(samplePayload())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	s := string(out)
	if strings.Contains(s, ": ") || strings.Contains(s, ", ") {
		t.Errorf("Encode() contains insignificant whitespace: %s", s)
	}

	// Must be valid JSON with the fixed key set in lexicographic order.
	var m map[string]json.RawMessage
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("Encode() output is not valid JSON: %v", err)
	}
	want := []string{
		"commit_bar_ts", "context", "p_commit", "prediction",
		"salt", "symbol", "timestamp_commit_utc",
	}
	if len(m) != len(want) {
		t.Fatalf("Encode() has %d keys, want %d", len(m), len(want))
	}
	if !sort.StringsAreSorted(want) {
		t.Fatal("expected key list is not sorted")
	}
	// Verify emitted order matches the sorted key list.
	pos := -1
	for _, k := range want {
		i := strings.Index(s, `"`+k+`"`)
		if i < 0 {
			t.Fatalf("Encode() missing key %q", k)
		}
		if i < pos {
			t.Errorf("Encode() key %q out of lexicographic order", k)
		}
		pos = i
	}
}

func TestEncode_PriceAsFixedPointNumber(t *testing.T) {
	out, err := Encode(samplePayload())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !strings.Contains(string(out), `"p_commit":450.2500`) {
		t.Errorf("Encode() price not in pinned fixed-point form: %s", out)
	}
}

func TestEncode_FieldSensitivity(t *testing.T) {
	base, err := Encode(samplePayload())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	mutations := []struct {
		name string
		mut  func(*Payload)
	}{
		{"ticker", func(p *Payload) { p.Ticker = "AAPL" }},
		{"prediction", func(p *Payload) { p.Prediction = 0 }},
		{"p_commit", func(p *Payload) { p.PCommit = decimal.RequireFromString("450.26") }},
		{"commit_bar_ts", func(p *Payload) { p.CommitBarTS = "2024-01-15T15:54:00-05:00" }},
		{"timestamp_commit_utc", func(p *Payload) { p.CommitTimeUTC = "2024-01-15T20:55:13Z" }},
		{"salt", func(p *Payload) { p.Salt = "ff112233445566778899aabbccddeeff" }},
		{"context", func(p *Payload) { p.Context = "2024-01-15|SPY|NASDAQ|close" }},
	}
	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			p := samplePayload()
			tt.mut(&p)
			got, err := Encode(p)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if string(got) == string(base) {
				t.Errorf("flipping %s did not change the canonical encoding", tt.name)
			}
		})
	}
}

func TestEncode_EquivalentDecimalRepresentations(t *testing.T) {
	a := samplePayload()
	a.PCommit = decimal.RequireFromString("450.2500")
	b := samplePayload()
	b.PCommit = decimal.RequireFromString("450.25")

	ea, err := Encode(a)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	eb, err := Encode(b)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if string(ea) != string(eb) {
		t.Errorf("equal price values must serialize identically: %s != %s", ea, eb)
	}
}
