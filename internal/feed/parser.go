package feed

import (
	"encoding/json"
	"strings"

	"github.com/yanun0323/errors"

	"main/internal/schema"
	"main/pkg/exception"
	"main/pkg/scanner"
)

// Parser turns one protocol frame into raw tick fields. An unrecognized
// shape and bad field values are distinct failures: the first is the
// parser's (exception.ErrUnknownShape), the second is the sanitizer's.
type Parser interface {
	// SubscribeRequest builds the subscription frame for a symbol set.
	SubscribeRequest(symbols []string) ([]byte, error)

	// Parse extracts the raw tick fields. Frames that carry no tick data
	// return exception.ErrFrameSkipped.
	Parse(frame []byte) (schema.RawTick, error)
}

var (
	keyEvent     = []byte(`"e"`)
	klineEvent   = []byte("kline")
	keySubResult = []byte(`"result"`)
)

// BinanceKlineParser consumes Binance kline stream frames.
type BinanceKlineParser struct {
	// Interval is the kline interval, e.g. "1m". Optional; default "1m".
	Interval string
}

type binanceSubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type binanceKlineFrame struct {
	Event string `json:"e"`
	Kline struct {
		Start  any `json:"t"`
		Open   any `json:"o"`
		High   any `json:"h"`
		Low    any `json:"l"`
		Close  any `json:"c"`
		Volume any `json:"v"`
	} `json:"k"`
}

func (p BinanceKlineParser) interval() string {
	if p.Interval == "" {
		return "1m"
	}
	return p.Interval
}

func (p BinanceKlineParser) SubscribeRequest(symbols []string) ([]byte, error) {
	if len(symbols) == 0 {
		return nil, exception.ErrInvalidArgument
	}
	params := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		params = append(params, strings.ToLower(symbol)+"@kline_"+p.interval())
	}
	payload, err := json.Marshal(binanceSubscribeRequest{
		Method: "SUBSCRIBE",
		Params: params,
		ID:     1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal subscribe")
	}
	return payload, nil
}

// Parse routes on the raw event field before paying for a full decode.
func (p BinanceKlineParser) Parse(frame []byte) (schema.RawTick, error) {
	event, ok := scanner.ScanStringField(frame, keyEvent)
	if !ok {
		// subscribe acks look like {"result":null,"id":1}
		if scanner.IndexOf(frame, keySubResult) >= 0 {
			return schema.RawTick{}, exception.ErrFrameSkipped
		}
		return schema.RawTick{}, exception.ErrUnknownShape
	}
	if !bytesEqual(event, klineEvent) {
		return schema.RawTick{}, exception.ErrFrameSkipped
	}

	var decoded binanceKlineFrame
	if err := json.Unmarshal(frame, &decoded); err != nil {
		return schema.RawTick{}, errors.Wrap(exception.ErrUnknownShape, err.Error())
	}
	return schema.RawTick{
		Timestamp: decoded.Kline.Start,
		Open:      decoded.Kline.Open,
		High:      decoded.Kline.High,
		Low:       decoded.Kline.Low,
		Close:     decoded.Kline.Close,
		Volume:    decoded.Kline.Volume,
	}, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
