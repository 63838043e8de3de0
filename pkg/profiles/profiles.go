// SSVC Gateway
// Copyright (c) 2026 The SSVC Gateway Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of SSVC Gateway.
//
// SSVC Gateway is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SSVC Gateway is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with SSVC Gateway.  If not, see <http://www.gnu.org/licenses/>.

// Package profiles stores named snapshots of the gateway settings on disk
// and restores them through registered observers.
package profiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/ssvc-open-connect/gateway/pkg/helpers/syncutil"
)

const (
	MetadataFile     = "profiles_metadata.json"
	DefaultProfileID = "0"
	defaultName      = "Default Profile"
	timestampFormat  = "2006-01-02T15:04:05Z"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileParse    = errors.New("malformed profile")
)

// Observer takes part in saving and applying profiles under its own key of
// the profile document.
type Observer interface {
	Save() (json.RawMessage, error)
	Apply(data json.RawMessage) error
}

type Metadata struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
	IsApplied bool   `json:"isApplied"`
}

type observerEntry struct {
	obs Observer
	key string
}

// Store keeps one <id>.json file per profile plus a metadata index.
type Store struct {
	fs        afero.Fs
	clock     clockwork.Clock
	dir       string
	observers []observerEntry
	mu        syncutil.Mutex
}

func NewStore(fs afero.Fs, dir string, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{fs: fs, dir: dir, clock: clock}
}

// Subscribe registers an observer for the given document key.
func (s *Store) Subscribe(key string, obs Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observerEntry{key: key, obs: obs})
}

func (s *Store) now() string {
	return s.clock.Now().UTC().Format(timestampFormat)
}

func (s *Store) profilePath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\.`)
}

// Init creates the directory, drops index entries whose file is gone, adds
// files missing from the index, and makes sure one profile is active.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create profiles dir: %w", err)
	}
	meta, err := s.readMetadata()
	if err != nil {
		log.Warn().Err(err).Msg("rebuilding profile metadata")
		meta = nil
	}

	known := make(map[string]bool, len(meta))
	kept := meta[:0]
	for _, m := range meta {
		exists, err := afero.Exists(s.fs, s.profilePath(m.ID))
		if err != nil {
			return fmt.Errorf("failed to stat profile %s: %w", m.ID, err)
		}
		if exists {
			kept = append(kept, m)
			known[m.ID] = true
		}
	}
	meta = kept

	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == MetadataFile || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if !known[id] {
			meta = append(meta, Metadata{ID: id, Name: "Profile " + id, CreatedAt: s.now()})
		}
	}

	if len(meta) == 0 {
		if err := s.writeProfile(DefaultProfileID, defaultName, nil); err != nil {
			return err
		}
		meta = append(meta, Metadata{ID: DefaultProfileID, Name: defaultName, CreatedAt: s.now()})
	}
	if !slices.ContainsFunc(meta, func(m Metadata) bool { return m.IsApplied }) {
		meta[0].IsApplied = true
	}
	return s.writeMetadata(meta)
}

func (s *Store) readMetadata() ([]Metadata, error) {
	data, err := afero.ReadFile(s.fs, filepath.Join(s.dir, MetadataFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile metadata: %w", err)
	}
	var meta []Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: metadata: %w", ErrProfileParse, err)
	}
	return meta, nil
}

func (s *Store) writeMetadata(meta []Metadata) error {
	if meta == nil {
		meta = []Metadata{}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode profile metadata: %w", err)
	}
	if err := afero.WriteFile(s.fs, filepath.Join(s.dir, MetadataFile), data, 0o600); err != nil {
		return fmt.Errorf("failed to write profile metadata: %w", err)
	}
	return nil
}

func (s *Store) readProfile(id string) (map[string]json.RawMessage, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrProfileNotFound, id)
	}
	data, err := afero.ReadFile(s.fs, s.profilePath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", id, err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProfileParse, id, err)
	}
	return doc, nil
}

// writeProfile stores content under id. Observer keys missing from content
// are filled from the observers' current state.
func (s *Store) writeProfile(id, name string, content map[string]json.RawMessage) error {
	doc := make(map[string]json.RawMessage, len(content)+3)
	for k, v := range content {
		doc[k] = v
	}
	for _, o := range s.observers {
		if _, ok := doc[o.key]; ok {
			continue
		}
		data, err := o.obs.Save()
		if err != nil {
			return fmt.Errorf("failed to save %s: %w", o.key, err)
		}
		doc[o.key] = data
	}
	doc["id"] = mustString(id)
	doc["name"] = mustString(name)
	doc["createdAt"] = mustString(s.now())

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode profile %s: %w", id, err)
	}
	if err := afero.WriteFile(s.fs, s.profilePath(id), data, 0o600); err != nil {
		return fmt.Errorf("failed to write profile %s: %w", id, err)
	}
	return nil
}

func mustString(v string) json.RawMessage {
	data, _ := json.Marshal(v) //nolint:errchkjson // strings always encode
	return data
}

func (s *Store) List() ([]Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, err := s.readMetadata()
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = []Metadata{}
	}
	return meta, nil
}

// Active returns the applied profile, or an empty Metadata if none is.
func (s *Store) Active() (Metadata, error) {
	meta, err := s.List()
	if err != nil {
		return Metadata{}, err
	}
	for _, m := range meta {
		if m.IsApplied {
			return m, nil
		}
	}
	return Metadata{}, nil
}

// Content returns the stored profile document.
func (s *Store) Content(id string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readProfile(id)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile %s: %w", id, err)
	}
	return data, nil
}

// Create stores a new profile. Keys missing from content are taken from the
// current state.
func (s *Store) Create(name string, content json.RawMessage) (Metadata, error) {
	var doc map[string]json.RawMessage
	if len(content) > 0 {
		if err := json.Unmarshal(content, &doc); err != nil {
			return Metadata{}, fmt.Errorf("%w: %w", ErrProfileParse, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(name, doc)
}

func (s *Store) create(name string, doc map[string]json.RawMessage) (Metadata, error) {
	meta, err := s.readMetadata()
	if err != nil {
		return Metadata{}, err
	}
	m := Metadata{ID: uuid.NewString(), Name: name, CreatedAt: s.now()}
	if err := s.writeProfile(m.ID, name, doc); err != nil {
		return Metadata{}, err
	}
	if err := s.writeMetadata(append(meta, m)); err != nil {
		return Metadata{}, err
	}
	log.Info().Str("id", m.ID).Str("name", name).Msg("profile created")
	return m, nil
}

// Copy duplicates a profile under a new name.
func (s *Store) Copy(srcID, name string) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readProfile(srcID)
	if err != nil {
		return Metadata{}, err
	}
	return s.create(name, doc)
}

func (s *Store) Rename(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, err := s.readMetadata()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(meta, func(m Metadata) bool { return m.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	meta[i].Name = name
	doc, err := s.readProfile(id)
	if err != nil {
		return err
	}
	doc["name"] = mustString(name)
	if err := s.rewrite(id, doc); err != nil {
		return err
	}
	return s.writeMetadata(meta)
}

func (s *Store) rewrite(id string, doc map[string]json.RawMessage) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode profile %s: %w", id, err)
	}
	if err := afero.WriteFile(s.fs, s.profilePath(id), data, 0o600); err != nil {
		return fmt.Errorf("failed to write profile %s: %w", id, err)
	}
	return nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, err := s.readMetadata()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(meta, func(m Metadata) bool { return m.ID == id })
	if i < 0 || !validID(id) {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	if err := s.fs.Remove(s.profilePath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete profile %s: %w", id, err)
	}
	log.Info().Str("id", id).Msg("profile deleted")
	return s.writeMetadata(slices.Delete(meta, i, i+1))
}

// SaveCurrent overwrites the observer sections of a profile with the
// current state.
func (s *Store) SaveCurrent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readProfile(id)
	if err != nil {
		return err
	}
	for _, o := range s.observers {
		data, err := o.obs.Save()
		if err != nil {
			return fmt.Errorf("failed to save %s: %w", o.key, err)
		}
		doc[o.key] = data
	}
	return s.rewrite(id, doc)
}

// UpdateContent replaces the sections present in content.
func (s *Store) UpdateContent(id string, content json.RawMessage) error {
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(content, &patch); err != nil {
		return fmt.Errorf("%w: %w", ErrProfileParse, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readProfile(id)
	if err != nil {
		return err
	}
	for k, v := range patch {
		if k == "id" || k == "createdAt" {
			continue
		}
		doc[k] = v
	}
	return s.rewrite(id, doc)
}

// Apply marks the profile active and hands each observer its section.
func (s *Store) Apply(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readProfile(id)
	if err != nil {
		return err
	}
	meta, err := s.readMetadata()
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(meta, func(m Metadata) bool { return m.ID == id }) {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}

	var errs []error
	for _, o := range s.observers {
		section, ok := doc[o.key]
		if !ok || len(section) == 0 || section[0] != '{' {
			continue
		}
		if err := o.obs.Apply(section); err != nil {
			errs = append(errs, fmt.Errorf("failed to apply %s: %w", o.key, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	for i := range meta {
		meta[i].IsApplied = meta[i].ID == id
	}
	log.Info().Str("id", id).Msg("profile applied")
	return s.writeMetadata(meta)
}
