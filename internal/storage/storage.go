// Package storage persists discovery candidates as a JSON file. The
// discovery job appends ASINs it finds on listing pages, cmd/seed imports
// them into the tracker, and the file doubles as a human-editable seed list.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	StatusPending  = "pending"
	StatusImported = "imported"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
)

type Candidate struct {
	ASIN        string    `json:"asin"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Marketplace string    `json:"marketplace"`
	Source      string    `json:"source"`
	Status      string    `json:"status"`
	AddedAt     time.Time `json:"added_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Error       string    `json:"error,omitempty"`
}

type SeedStore struct {
	mu         sync.RWMutex
	candidates map[string]*Candidate
	filename   string
}

func NewSeedStore(filename string) (*SeedStore, error) {
	s := &SeedStore{
		candidates: make(map[string]*Candidate),
		filename:   filename,
	}

	if err := s.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return s, nil
}

func (s *SeedStore) Add(candidate *Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if candidate.ASIN == "" {
		return fmt.Errorf("ASIN is required")
	}

	candidate.AddedAt = time.Now()
	candidate.UpdatedAt = time.Now()
	if candidate.Status == "" {
		candidate.Status = StatusPending
	}

	s.candidates[candidate.ASIN] = candidate
	return s.save()
}

// AddBatch stores candidates that are not already known and reports how many
// were new. Already-seen ASINs keep their existing record, so a re-run of
// discovery does not reset import progress.
func (s *SeedStore) AddBatch(candidates []*Candidate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, candidate := range candidates {
		if candidate.ASIN == "" {
			continue
		}
		if _, exists := s.candidates[candidate.ASIN]; exists {
			continue
		}

		candidate.AddedAt = time.Now()
		candidate.UpdatedAt = time.Now()
		if candidate.Status == "" {
			candidate.Status = StatusPending
		}

		s.candidates[candidate.ASIN] = candidate
		added++
	}

	return added, s.save()
}

func (s *SeedStore) Get(asin string) (*Candidate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidate, exists := s.candidates[asin]
	return candidate, exists
}

func (s *SeedStore) Pending() []*Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*Candidate
	for _, candidate := range s.candidates {
		if candidate.Status == StatusPending {
			pending = append(pending, candidate)
		}
	}
	return pending
}

// Known returns every ASIN in the file regardless of status. Discovery seeds
// its duplicate filter from this set.
func (s *SeedStore) Known() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	known := make(map[string]bool, len(s.candidates))
	for asin := range s.candidates {
		known[asin] = true
	}
	return known
}

func (s *SeedStore) UpdateStatus(asin, status, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate, exists := s.candidates[asin]
	if !exists {
		return fmt.Errorf("candidate not found: %s", asin)
	}

	candidate.Status = status
	candidate.UpdatedAt = time.Now()
	candidate.Error = errorMsg

	return s.save()
}

func (s *SeedStore) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int)
	for _, candidate := range s.candidates {
		stats[candidate.Status]++
	}
	stats["total"] = len(s.candidates)
	return stats
}

func (s *SeedStore) save() error {
	data, err := json.MarshalIndent(s.candidates, "", "  ")
	if err != nil {
		return err
	}

	// Temp file plus rename keeps the seed list readable even if the process
	// dies mid-write.
	tmpFile := s.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpFile, s.filename)
}

func (s *SeedStore) Load() error {
	data, err := os.ReadFile(s.filename)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &s.candidates)
}
