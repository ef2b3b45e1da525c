// Package store holds the latest reading per device. It is the single
// hand-off point between pollers and consumers.
package store

import (
	"maps"
	"sort"
	"sync"

	"codeberg.org/welterm/udsd/internal/hardware"
)

// Snapshot is a consistent copy of the full state. It doubles as the
// push envelope; the key names are fixed for downstream compatibility.
type Snapshot struct {
	Sensors []hardware.SensorReading `json:"sensors"`
	Upses   []hardware.UPSReading    `json:"upses"`
}

// Store is the concurrency-safe latest-state cache, keyed by hardware
// id within each family.
type Store struct {
	mu      sync.RWMutex
	sensors map[string]hardware.SensorReading
	upses   map[string]hardware.UPSReading
}

func New() *Store {
	return &Store{
		sensors: make(map[string]hardware.SensorReading),
		upses:   make(map[string]hardware.UPSReading),
	}
}

// UpsertSensor replaces the reading for the sensor's id. Newest write
// wins.
func (s *Store) UpsertSensor(r hardware.SensorReading) {
	s.mu.Lock()
	s.sensors[r.Meta.HW.ID] = r
	s.mu.Unlock()
}

// UpsertUPS replaces the reading for the UPS's id. Newest write wins.
func (s *Store) UpsertUPS(r hardware.UPSReading) {
	s.mu.Lock()
	s.upses[r.Meta.HW.ID] = r
	s.mu.Unlock()
}

// Snapshot copies the full state. Slices are never nil so a family
// with no readings serializes as [], and entries are ordered by id so
// output is deterministic. Mutating the result does not touch the
// store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Sensors: make([]hardware.SensorReading, 0, len(s.sensors)),
		Upses:   make([]hardware.UPSReading, 0, len(s.upses)),
	}
	for _, r := range s.sensors {
		snap.Sensors = append(snap.Sensors, r)
	}
	for _, r := range s.upses {
		snap.Upses = append(snap.Upses, cloneUPS(r))
	}

	sortSnapshot(&snap)

	return snap
}

// SnapshotFiltered copies the state restricted to one device. An
// unknown id yields an empty snapshot.
func (s *Store) SnapshotFiltered(t hardware.Type, id string) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Sensors: []hardware.SensorReading{},
		Upses:   []hardware.UPSReading{},
	}
	switch t {
	case hardware.TypeTemperatureSensor:
		if r, ok := s.sensors[id]; ok {
			snap.Sensors = append(snap.Sensors, r)
		}
	case hardware.TypeUPS:
		if r, ok := s.upses[id]; ok {
			snap.Upses = append(snap.Upses, cloneUPS(r))
		}
	}

	return snap
}

// RemoveStale drops entries of family t whose id is not in present.
// Pollers call this only when eviction is configured; the default is
// to retain last-known readings.
func (s *Store) RemoveStale(t hardware.Type, present map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch t {
	case hardware.TypeTemperatureSensor:
		for id := range s.sensors {
			if _, ok := present[id]; !ok {
				delete(s.sensors, id)
			}
		}
	case hardware.TypeUPS:
		for id := range s.upses {
			if _, ok := present[id]; !ok {
				delete(s.upses, id)
			}
		}
	}
}

func cloneUPS(r hardware.UPSReading) hardware.UPSReading {
	r.Variables = maps.Clone(r.Variables)
	return r
}

func sortSnapshot(snap *Snapshot) {
	sort.Slice(snap.Sensors, func(i, j int) bool {
		return snap.Sensors[i].Meta.HW.ID < snap.Sensors[j].Meta.HW.ID
	})
	sort.Slice(snap.Upses, func(i, j int) bool {
		return snap.Upses[i].Meta.HW.ID < snap.Upses[j].Meta.HW.ID
	})
}
