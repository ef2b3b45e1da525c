package onewire

import (
	"context"

	"codeberg.org/welterm/udsd/internal/hardware"
	"codeberg.org/welterm/udsd/internal/logger"
	"codeberg.org/welterm/udsd/internal/metrics"
	"codeberg.org/welterm/udsd/internal/store"
)

const moduleName = "one_wire"

// Poller reads every listed device once per cycle and publishes
// successful reads to the store.
type Poller struct {
	reader     Reader
	store      *store.Store
	evictStale bool
}

func NewPoller(reader Reader, st *store.Store, evictStale bool) *Poller {
	return &Poller{reader: reader, store: st, evictStale: evictStale}
}

// Cycle runs one enumerate-and-read pass. A failing device is logged
// and skipped so one bad sensor never hides the rest; its previous
// reading stays in the store.
func (p *Poller) Cycle(ctx context.Context) {
	metrics.Cycles.WithLabelValues(moduleName).Inc()

	ids, err := p.reader.List()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to enumerate 1-wire devices")
		metrics.ReadFailures.WithLabelValues(moduleName).Inc()
		return
	}

	present := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}

		m, err := p.reader.Read(id)
		if err != nil {
			logger.Warn().Str("device", id).Err(err).Msg("Failed to read 1-wire device")
			metrics.ReadFailures.WithLabelValues(moduleName).Inc()
			continue
		}

		p.store.UpsertSensor(hardware.NewSensorReading(id, m.Temperature, m.Resolution))
		present[id] = struct{}{}

		logger.Debug().
			Str("device", id).
			Float64("temperature", m.Temperature).
			Int("resolution", m.Resolution).
			Msg("Read 1-wire device")
	}

	if p.evictStale {
		p.store.RemoveStale(hardware.TypeTemperatureSensor, present)
	}

	metrics.DevicesReporting.WithLabelValues(moduleName).Set(float64(len(present)))
}
