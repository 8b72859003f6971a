// Package prefs persists the ranked list's sort state.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rewired-gh/bookrisk/internal/logger"
	"github.com/rewired-gh/bookrisk/internal/models"
	"github.com/rewired-gh/bookrisk/internal/storage"
)

// SortStateKey is the storage key of the persisted sort state.
const SortStateKey = "ra_bookrisk_sort_state"

var ErrUnknownField = errors.New("unknown sort field")

// SortStates loads and saves the sort state through a KV, keeping an
// in-memory copy that is used whenever the KV is missing or failing.
type SortStates struct {
	kv       storage.KV
	fallback *storage.Memory
	initial  models.SortState
}

// NewSortStates returns a store over kv. A nil kv keeps state in memory only.
func NewSortStates(kv storage.KV) *SortStates {
	return &SortStates{kv: kv, fallback: storage.NewMemory(), initial: models.DefaultSortState()}
}

// SetInitial sets the state Load returns before anything has been saved.
// An unknown field is replaced by the default field.
func (s *SortStates) SetInitial(state models.SortState) {
	if f, ok := models.ParseSortField(string(state.Field)); ok {
		state.Field = f
	} else {
		state.Field = models.DefaultSortState().Field
	}
	s.initial = state
}

type persisted struct {
	Field  string `json:"field"`
	Desc   *bool  `json:"desc"`
	Signed *bool  `json:"signed"`
}

// Load returns the stored sort state, or the initial state when nothing is stored.
func (s *SortStates) Load(ctx context.Context) models.SortState {
	raw, ok := s.read(ctx)
	if !ok {
		return s.initial
	}
	return Decode(raw)
}

func (s *SortStates) read(ctx context.Context) (string, bool) {
	if s.kv != nil {
		raw, ok, err := s.kv.Get(ctx, SortStateKey)
		if err == nil && ok {
			return raw, true
		}
		if err != nil {
			logger.Warn("Failed to read sort state, using in-memory copy: %v", err)
		}
	}
	raw, ok, _ := s.fallback.Get(ctx, SortStateKey)
	return raw, ok
}

// Save stores state. Write failures are logged and the state is kept in
// memory, so Save only fails for an unknown field.
func (s *SortStates) Save(ctx context.Context, state models.SortState) error {
	field, ok := models.ParseSortField(string(state.Field))
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, state.Field)
	}
	state.Field = field
	raw := Encode(state)

	_ = s.fallback.Set(ctx, SortStateKey, raw)
	if s.kv != nil {
		if err := s.kv.Set(ctx, SortStateKey, raw); err != nil {
			logger.Warn("Failed to persist sort state, kept in memory: %v", err)
		}
	}
	return nil
}

// Encode serialises a sort state as {field, desc, signed}.
func Encode(state models.SortState) string {
	b, _ := json.Marshal(state)
	return string(b)
}

// Decode parses a stored sort state. Invalid JSON yields the default; an
// unknown field yields the default field; missing flags take their defaults.
func Decode(raw string) models.SortState {
	def := models.DefaultSortState()
	var p persisted
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		logger.Debug("Discarding invalid sort state %q: %v", raw, err)
		return def
	}

	state := def
	if f, ok := models.ParseSortField(p.Field); ok {
		state.Field = f
	}
	if p.Desc != nil {
		state.Descending = *p.Desc
	}
	if p.Signed != nil {
		state.Signed = *p.Signed
	}
	return state
}
