package sanitize

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// Field errors carry the failing field name so rejected payloads can be
// diagnosed from the log alone.
var (
	ErrMissingField = errors.New("sanitize: required field missing")
	ErrBadNumber    = errors.New("sanitize: field is not a finite number")
	ErrZeroPrice    = errors.New("sanitize: zero price or timestamp")
)

// Sanitize coerces the six raw tick fields into finite floats. It is total:
// any input shape yields either a well-formed tick or an error, never a
// panic. A missing or null volume becomes 0.0; a missing, null or zero
// price/timestamp rejects the record, because upstream corruption must not
// be papered over with silent zeros.
func Sanitize(raw schema.RawTick) (schema.Tick, error) {
	var (
		t   schema.Tick
		err error
	)

	required := []struct {
		name string
		src  any
		dst  *float64
	}{
		{"timestamp", raw.Timestamp, &t.Timestamp},
		{"open", raw.Open, &t.Open},
		{"high", raw.High, &t.High},
		{"low", raw.Low, &t.Low},
		{"close", raw.Close, &t.Close},
	}

	for _, f := range required {
		if f.src == nil {
			return schema.Tick{}, errors.Wrap(ErrMissingField, f.name)
		}
		if *f.dst, err = coerce(f.src); err != nil {
			return schema.Tick{}, errors.Wrap(err, f.name)
		}
		if *f.dst == 0 {
			return schema.Tick{}, errors.Wrap(ErrZeroPrice, f.name)
		}
	}

	if raw.Volume == nil {
		t.Volume = 0
		return t, nil
	}
	if t.Volume, err = coerce(raw.Volume); err != nil {
		return schema.Tick{}, errors.Wrap(err, "volume")
	}
	return t, nil
}

func coerce(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return parse(n.String())
	case string:
		return parse(n)
	default:
		return 0, errors.Wrap(ErrBadNumber, fmt.Sprintf("unsupported type %T", v))
	}
}

func parse(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return 0, ErrMissingField
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Wrap(ErrBadNumber, s)
	}
	f, _ := d.Float64()
	return finite(f)
}

func finite(f float64) (float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrBadNumber
	}
	return f, nil
}
