package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dmitrijs2005/mzexplorer/internal/apppassword"
)

// ErrNoSuchProfile is returned when a named profile does not exist.
var ErrNoSuchProfile = errors.New("no such profile")

// Profile is one named credential set. Cluster, Database and Schema are
// stored starting values; during a session they are overridden in memory
// only and never written back here.
type Profile struct {
	AppPassword   string `json:"app-password"`
	Region        string `json:"region"`
	AdminEndpoint string `json:"admin-endpoint,omitempty"`
	CloudEndpoint string `json:"cloud-endpoint,omitempty"`
	Cluster       string `json:"cluster,omitempty"`
	Database      string `json:"database,omitempty"`
	Schema        string `json:"schema,omitempty"`
}

// AdminEndpointOrDefault returns the profile's identity endpoint override,
// or fallback when none is set.
func (p Profile) AdminEndpointOrDefault(fallback string) string {
	if p.AdminEndpoint != "" {
		return p.AdminEndpoint
	}
	if fallback != "" {
		return fallback
	}
	return DefaultAdminEndpoint
}

// CloudEndpointOrDefault returns the profile's directory endpoint override,
// or fallback when none is set.
func (p Profile) CloudEndpointOrDefault(fallback string) string {
	if p.CloudEndpoint != "" {
		return p.CloudEndpoint
	}
	if fallback != "" {
		return fallback
	}
	return DefaultCloudEndpoint
}

type profilesFile struct {
	CurrentProfile string             `json:"current_profile,omitempty"`
	Profiles       map[string]Profile `json:"profiles"`
}

// Store persists named profiles in a JSON file. A missing file is the
// first-run state: zero profiles, nothing selected.
type Store struct {
	path string

	mu   sync.Mutex
	file profilesFile
}

// NewStore loads the profiles file at path, tolerating its absence.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, file: profilesFile{Profiles: map[string]Profile{}}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading profiles file: %w", err)
	}
	if err := json.Unmarshal(data, &s.file); err != nil {
		return nil, fmt.Errorf("parsing profiles file: %w", err)
	}
	if s.file.Profiles == nil {
		s.file.Profiles = map[string]Profile{}
	}

	return s, nil
}

// Profile returns the currently selected profile.
func (s *Store) Profile() (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.file.Profiles[s.file.CurrentProfile]
	return p, ok
}

// ProfileName returns the name of the currently selected profile, or "".
func (s *Store) ProfileName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.CurrentProfile
}

// ProfileNames returns all profile names, sorted.
func (s *Store) ProfileNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.file.Profiles))
	for name := range s.file.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetProfile selects the named profile and persists the selection.
func (s *Store) SetProfile(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.file.Profiles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchProfile, name)
	}
	s.file.CurrentProfile = name
	return s.save()
}

// AddAndSaveProfile stores a new profile under name, selects it, and
// persists the file.
func (s *Store) AddAndSaveProfile(name string, cred apppassword.Credential, region string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.file.Profiles[name] = Profile{AppPassword: cred.String(), Region: region}
	s.file.CurrentProfile = name
	return s.save()
}

// RemoveAndSaveProfile deletes the named profile and persists the file.
// If the removed profile was selected, the first remaining profile (sorted)
// becomes selected, or none when the store is empty.
func (s *Store) RemoveAndSaveProfile(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.file.Profiles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchProfile, name)
	}
	delete(s.file.Profiles, name)

	if s.file.CurrentProfile == name {
		s.file.CurrentProfile = ""
		names := make([]string, 0, len(s.file.Profiles))
		for n := range s.file.Profiles {
			names = append(names, n)
		}
		if len(names) > 0 {
			sort.Strings(names)
			s.file.CurrentProfile = names[0]
		}
	}

	return s.save()
}

// save writes the file under the held lock.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.file, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating profiles directory: %w", err)
		}
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing profiles file: %w", err)
	}
	return nil
}
