package nut

import (
	"context"

	"codeberg.org/welterm/udsd/internal/config"
	"codeberg.org/welterm/udsd/internal/hardware"
	"codeberg.org/welterm/udsd/internal/logger"
	"codeberg.org/welterm/udsd/internal/metrics"
	"codeberg.org/welterm/udsd/internal/store"
)

const moduleName = "ups_monitoring"

// DefaultVariables is the monitored set for UPS entries that do not
// name their own.
var DefaultVariables = []string{
	"battery.charge",
	"battery.charge.low",
	"battery.runtime",
	"battery.runtime.low",
	"input.frequency",
	"input.voltage",
	"output.frequency",
	"output.frequency.nominal",
	"output.voltage",
	"output.voltage.nominal",
	"ups.load",
	"ups.power",
	"ups.power.nominal",
	"ups.realpower",
	"ups.status",
}

// UPSID is the composite hardware id for one UPS on one server
func UPSID(name, serverID string) string {
	return "[" + name + "]" + serverID
}

type upsSpec struct {
	name      string
	variables []string
}

// serverState tracks one server's session across cycles
type serverState struct {
	id     string
	dialer Dialer
	upses  []upsSpec
	conn   Conn
}

// Poller polls every configured server each cycle. Sessions are kept
// between cycles; a dead one is redialed once per cycle, never inside
// a cycle.
type Poller struct {
	servers []*serverState
	store   *store.Store
}

func NewPoller(servers []config.NUTServer, st *store.Store) *Poller {
	p := &Poller{store: st}
	for _, srv := range servers {
		state := &serverState{
			id:     srv.ServerID(),
			dialer: NewClient(srv),
		}
		for _, ups := range srv.Upses {
			variables := ups.VariablesToMonitor
			if len(variables) == 0 {
				variables = DefaultVariables
			}
			state.upses = append(state.upses, upsSpec{name: ups.Name, variables: variables})
		}
		p.servers = append(p.servers, state)
	}

	return p
}

// Cycle polls the servers sequentially. One server's failure never
// affects another's poll.
func (p *Poller) Cycle(ctx context.Context) {
	metrics.Cycles.WithLabelValues(moduleName).Inc()

	reporting := 0
	for _, srv := range p.servers {
		if ctx.Err() != nil {
			return
		}
		reporting += srv.poll(ctx, p.store)
	}

	metrics.DevicesReporting.WithLabelValues(moduleName).Set(float64(reporting))
}

// Close shuts down every kept session
func (p *Poller) Close() {
	for _, srv := range p.servers {
		if srv.conn != nil {
			_ = srv.conn.Close()
			srv.conn = nil
		}
	}
}

func (s *serverState) poll(ctx context.Context, st *store.Store) int {
	if s.conn != nil {
		if err := s.conn.Ping(); err != nil {
			logger.Debug().Str("server", s.id).Err(err).Msg("Kept session is dead")
			_ = s.conn.Close()
			s.conn = nil
		}
	}

	if s.conn == nil {
		conn, err := s.dialer.Dial(ctx)
		if err != nil {
			logger.Warn().Str("server", s.id).Err(err).Msg("Failed to connect to NUT server")
			metrics.ConnectFailures.WithLabelValues(moduleName, s.id).Inc()
			return 0
		}
		s.conn = conn
		logger.Debug().Str("server", s.id).Msg("Connected to NUT server")
	}

	polled := 0
	for _, ups := range s.upses {
		variables, err := s.conn.Query(ups.name, ups.variables)
		if err != nil {
			logger.Warn().Str("server", s.id).Str("ups", ups.name).Err(err).Msg("Query failed, dropping session")
			metrics.ReadFailures.WithLabelValues(moduleName).Inc()
			_ = s.conn.Close()
			s.conn = nil
			return polled
		}

		st.UpsertUPS(hardware.NewUPSReading(UPSID(ups.name, s.id), variables))
		polled++

		logger.Debug().
			Str("server", s.id).
			Str("ups", ups.name).
			Int("variables", len(variables)).
			Msg("Polled UPS")
	}

	return polled
}
