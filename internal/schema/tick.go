package schema

// TickFieldCount is the number of numeric fields in a sanitized tick.
const TickFieldCount = 6

// Tick is one sanitized market record. Timestamp is epoch milliseconds
// carried as a float so all six fields share one encoding.
type Tick struct {
	Timestamp float64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// RawTick holds the six tick fields before numeric coercion. Each field may
// be any JSON-decoded shape (string, json.Number, float64, nil, ...).
type RawTick struct {
	Timestamp any
	Open      any
	High      any
	Low       any
	Close     any
	Volume    any
}
