// Package profile resolves per-user greenhouse profiles and telemetry.
//
// State is in-memory and seeded from embedded defaults on first access, so
// every user starts from the same demo greenhouse until they save changes.
// This is correct only for single-instance deployments; a shared store is
// required before scaling out.
package profile

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

//go:embed data/*.json
var defaultsFS embed.FS

// Profile describes one user's greenhouse: identity, crop and growing method.
type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Method      string `json:"method"`
	CropID      string `json:"cropId"`
	Variety     string `json:"variety,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Language    string `json:"language"`
	GrowthStage string `json:"growthStage,omitempty"`
}

// TelemetrySample is one sensor reading.
type TelemetrySample struct {
	Timestamp    time.Time `json:"timestamp"`
	Temperature  float64   `json:"temperature"`
	Humidity     float64   `json:"humidity"`
	SoilMoisture float64   `json:"soilMoisture"`
	LightHours   float64   `json:"lightHours,omitempty"`
	Sensor       string    `json:"sensor,omitempty"`
}

// Resolver hands out profiles and telemetry per user id. Safe for concurrent
// use.
type Resolver struct {
	mu        sync.RWMutex
	profiles  map[string]Profile
	telemetry map[string][]TelemetrySample

	defaultProfile   Profile
	defaultTelemetry []TelemetrySample
}

// NewResolver loads the embedded defaults and returns an empty resolver.
func NewResolver() (*Resolver, error) {
	raw, err := defaultsFS.ReadFile("data/greenhouse.json")
	if err != nil {
		return nil, fmt.Errorf("reading default greenhouse profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parsing default greenhouse profile: %w", err)
	}

	raw, err = defaultsFS.ReadFile("data/telemetry.json")
	if err != nil {
		return nil, fmt.Errorf("reading default telemetry: %w", err)
	}
	var samples []TelemetrySample
	if err := json.Unmarshal(raw, &samples); err != nil {
		return nil, fmt.Errorf("parsing default telemetry: %w", err)
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})

	return &Resolver{
		profiles:         make(map[string]Profile),
		telemetry:        make(map[string][]TelemetrySample),
		defaultProfile:   p,
		defaultTelemetry: samples,
	}, nil
}

// Get returns uid's profile, seeding it from the defaults on first access.
func (r *Resolver) Get(uid string) Profile {
	r.mu.RLock()
	p, ok := r.profiles[uid]
	r.mu.RUnlock()
	if ok {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[uid]; ok {
		return p
	}
	r.profiles[uid] = r.defaultProfile
	return r.defaultProfile
}

// Save replaces uid's profile.
func (r *Resolver) Save(uid string, p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[uid] = p
}

// samplesLocked returns uid's stored telemetry, seeding it from the defaults
// on first access. Caller must hold the write lock.
func (r *Resolver) samplesLocked(uid string) []TelemetrySample {
	if s, ok := r.telemetry[uid]; ok {
		return s
	}
	seeded := make([]TelemetrySample, len(r.defaultTelemetry))
	copy(seeded, r.defaultTelemetry)
	r.telemetry[uid] = seeded
	return seeded
}

// Samples returns a copy of uid's telemetry history in ascending timestamp
// order, seeding it from the defaults on first access.
func (r *Resolver) Samples(uid string) []TelemetrySample {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.samplesLocked(uid)
	out := make([]TelemetrySample, len(s))
	copy(out, s)
	return out
}

// Append records a new telemetry sample for uid. Seed and append happen under
// one critical section so concurrent appends never lose samples.
func (r *Resolver) Append(uid string, sample TelemetrySample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.telemetry[uid] = append(r.samplesLocked(uid), sample)
}

// Latest returns uid's most recent telemetry sample, or false when none
// exists.
func (r *Resolver) Latest(uid string) (TelemetrySample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.samplesLocked(uid)
	if len(s) == 0 {
		return TelemetrySample{}, false
	}
	return s[len(s)-1], true
}
