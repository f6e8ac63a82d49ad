package analyzers

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"flow-signal-bot/internal/market"
	"flow-signal-bot/internal/signal"
	"flow-signal-bot/internal/state"
)

const volumeSpikeScope = "volume_spike"

// VolumeSpikeConfig configures the volume spike detector.
type VolumeSpikeConfig struct {
	HistoryWindow  int           // bars used for the volume baseline
	SpikeWindow    int           // bars summed as the spike
	VolumeFactor   float64       // spike volume vs baseline multiple
	MinPriceChange float64       // minimum move over the spike window, %
	Cooldown       time.Duration
}

// DefaultVolumeSpikeConfig returns the production defaults.
func DefaultVolumeSpikeConfig() VolumeSpikeConfig {
	return VolumeSpikeConfig{
		HistoryWindow:  60,
		SpikeWindow:    3,
		VolumeFactor:   3.0,
		MinPriceChange: 0.5,
		Cooldown:       30 * time.Minute,
	}
}

// VolumeSpike detects short bursts of volume well above the recent
// baseline accompanied by a price move.
type VolumeSpike struct {
	cfg   VolumeSpikeConfig
	store state.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewVolumeSpike creates a volume spike detector.
func NewVolumeSpike(cfg VolumeSpikeConfig, store state.Store, log zerolog.Logger) *VolumeSpike {
	return &VolumeSpike{
		cfg:   cfg,
		store: store,
		log:   log.With().Str("component", "volume_spike").Logger(),
		now:   time.Now,
	}
}

// Analyze checks the latest bars for a volume spike. Returns nil when no
// spike is present, data is insufficient, or the symbol is cooling down.
func (v *VolumeSpike) Analyze(symbol string, candles []market.Candle) *signal.Signal {
	need := v.cfg.HistoryWindow + v.cfg.SpikeWindow
	if len(candles) < need {
		return nil
	}

	now := v.now()
	if last, ok := v.store.LastTrigger(volumeSpikeScope, symbol); ok && now.Sub(last) < v.cfg.Cooldown {
		return nil
	}

	spike := candles[len(candles)-v.cfg.SpikeWindow:]
	history := candles[len(candles)-need : len(candles)-v.cfg.SpikeWindow]

	spikeVolume := 0.0
	for _, c := range spike {
		spikeVolume += c.Volume
	}
	baseline := avgVolume(history) * float64(v.cfg.SpikeWindow)
	if baseline <= 0 {
		return nil
	}
	volumeRatio := spikeVolume / baseline

	spikeOpen := spike[0].Open
	if spikeOpen <= 0 {
		return nil
	}
	priceChange := (spike[len(spike)-1].Close - spikeOpen) / spikeOpen * 100

	if volumeRatio < v.cfg.VolumeFactor || priceChange < v.cfg.MinPriceChange || !volumeAccelerating(candles) {
		return nil
	}

	grade := signal.GradeB
	if volumeRatio > 5 {
		grade = signal.GradeA
	}

	v.store.SetLastTrigger(volumeSpikeScope, symbol, now)
	v.log.Info().
		Str("symbol", symbol).
		Float64("volume_ratio", volumeRatio).
		Float64("price_change_pct", priceChange).
		Str("grade", string(grade)).
		Msg("volume spike detected")

	return &signal.Signal{
		Type:      signal.TypeVolumeSpike,
		Grade:     grade,
		Symbol:    symbol,
		Timestamp: now,
		Description: fmt.Sprintf("volume %.1fx baseline with %+.2f%% move over %d bars",
			volumeRatio, priceChange, v.cfg.SpikeWindow),
		Fields: map[string]float64{
			"volume_ratio":     volumeRatio,
			"price_change_pct": priceChange,
			"spike_volume":     spikeVolume,
			"baseline_volume":  baseline,
		},
	}
}
