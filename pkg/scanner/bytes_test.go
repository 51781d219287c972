package scanner

import "testing"

func TestScanStringField(t *testing.T) {
	testCases := []struct {
		desc    string
		payload string
		key     string
		want    string
		ok      bool
	}{
		{"plain", `{"e":"kline","s":"BTCUSDT"}`, `"e"`, "kline", true},
		{"spaced", `{ "e" :  "kline" }`, `"e"`, "kline", true},
		{"later key", `{"s":"BTCUSDT","e":"trade"}`, `"e"`, "trade", true},
		{"missing key", `{"s":"BTCUSDT"}`, `"e"`, "", false},
		{"non-string value", `{"e":1}`, `"e"`, "", false},
		{"unterminated value", `{"e":"kli`, `"e"`, "", false},
		{"empty payload", ``, `"e"`, "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, ok := ScanStringField([]byte(tc.payload), []byte(tc.key))
			if ok != tc.ok {
				t.Fatalf("ok mismatch: got %v want %v", ok, tc.ok)
			}
			if ok && string(got) != tc.want {
				t.Fatalf("value mismatch: got %q want %q", got, tc.want)
			}
		})
	}
}

func TestIndexOf(t *testing.T) {
	payload := []byte(`{"result":null,"id":1}`)
	if got := IndexOf(payload, []byte(`"result"`)); got != 1 {
		t.Fatalf("got %d want 1", got)
	}
	if got := IndexOf(payload, []byte(`"missing"`)); got != -1 {
		t.Fatalf("got %d want -1", got)
	}
	if got := IndexOf(payload, nil); got != -1 {
		t.Fatalf("empty key: got %d want -1", got)
	}
}
