package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadCandlesCSV reads candles from a CSV export with the columns
// timestamp_ms,open,high,low,close,volume[,taker_buy_volume,taker_sell_volume].
// A header row is skipped when present. Empty taker columns leave the
// split unknown.
func LoadCandlesCSV(path string) ([]Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candle file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var candles []Candle
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read candle file %s: %w", path, err)
		}
		line++
		if len(rec) < 6 {
			return nil, fmt.Errorf("candle file %s line %d: expected at least 6 columns, got %d", path, line, len(rec))
		}
		if line == 1 {
			if _, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64); err != nil {
				continue // header row
			}
		}

		c, err := parseCandleRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("candle file %s line %d: %w", path, line, err)
		}
		candles = append(candles, c)
	}

	return candles, nil
}

func parseCandleRecord(rec []string) (Candle, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
	if err != nil {
		return Candle{}, fmt.Errorf("bad timestamp %q", rec[0])
	}

	vals := make([]float64, 5)
	names := []string{"open", "high", "low", "close", "volume"}
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
		if err != nil {
			return Candle{}, fmt.Errorf("bad %s %q", names[i], rec[i+1])
		}
		vals[i] = v
	}

	c := Candle{
		Timestamp: time.UnixMilli(ms).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}

	if len(rec) >= 8 {
		buy := strings.TrimSpace(rec[6])
		sell := strings.TrimSpace(rec[7])
		if buy != "" && sell != "" {
			b, err := strconv.ParseFloat(buy, 64)
			if err != nil {
				return Candle{}, fmt.Errorf("bad taker_buy_volume %q", rec[6])
			}
			s, err := strconv.ParseFloat(sell, 64)
			if err != nil {
				return Candle{}, fmt.Errorf("bad taker_sell_volume %q", rec[7])
			}
			c.TakerBuyVolume = Float64(b)
			c.TakerSellVolume = Float64(s)
		}
	}

	return c, nil
}
