// Package profiles keeps the list of saved connection profiles and mirrors
// it to storage as a single sealed blob.
package profiles

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/Raj-Manghani/terminus-prime/internal/crypto"
	"github.com/Raj-Manghani/terminus-prime/internal/database"
	"github.com/Raj-Manghani/terminus-prime/internal/logutil"
)

// Profile is a saved connection target. Secrets are never part of it.
type Profile struct {
	ID       string `json:"id" yaml:"id,omitempty"`
	Name     string `json:"name" yaml:"name"`
	Host     string `json:"host" yaml:"host"`
	Port     uint16 `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
}

// Draft is a Profile that has not been assigned an ID yet.
type Draft struct {
	Name     string `json:"name" yaml:"name"`
	Host     string `json:"host" yaml:"host"`
	Port     uint16 `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
}

// Draft strips the ID.
func (p Profile) Draft() Draft {
	return Draft{Name: p.Name, Host: p.Host, Port: p.Port, Username: p.Username}
}

// Sealer encrypts and decrypts the serialized list.
type Sealer interface {
	Seal(plaintext []byte) (string, error)
	Open(encoded string) ([]byte, error)
	Ready() bool
}

// BlobStore persists the sealed list.
type BlobStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Registry is the in-memory profile list. Every mutation replaces the list
// and then re-seals and overwrites the stored blob in full.
type Registry struct {
	sealer Sealer
	store  BlobStore

	mu       sync.Mutex
	loaded   bool
	profiles []Profile
}

func New(sealer Sealer, store BlobStore) *Registry {
	return &Registry{sealer: sealer, store: store}
}

// Load reads and decrypts the stored list. A missing blob is a fresh install
// and yields an empty registry. Decryption failures are returned as-is
// (crypto.ErrIntegrity / crypto.ErrFormat); the registry stays unloaded.
func (r *Registry) Load(ctx context.Context) error {
	if !r.sealer.Ready() {
		return crypto.ErrNotInitialized
	}

	encoded, ok, err := r.store.GetSetting(ctx, database.KeyProfiles)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}

	var list []Profile
	if ok && encoded != "" {
		plaintext, err := r.sealer.Open(encoded)
		if err != nil {
			return fmt.Errorf("load profiles: %w", err)
		}
		if err := json.Unmarshal(plaintext, &list); err != nil {
			return fmt.Errorf("load profiles: %w: %v", crypto.ErrFormat, err)
		}
	}

	r.mu.Lock()
	r.profiles = list
	r.loaded = true
	r.mu.Unlock()

	log.Printf("[registry] loaded %d profiles", len(list))
	return nil
}

func (r *Registry) ready() error {
	if !r.loaded || !r.sealer.Ready() {
		return crypto.ErrNotInitialized
	}
	return nil
}

// List returns a copy of the profiles in insertion order.
func (r *Registry) List() ([]Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return nil, err
	}
	out := make([]Profile, len(r.profiles))
	copy(out, r.profiles)
	return out, nil
}

// Get returns the profile with the given id.
func (r *Registry) Get(id string) (Profile, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return Profile{}, false, err
	}
	if i := r.indexLocked(id); i >= 0 {
		return r.profiles[i], true, nil
	}
	return Profile{}, false, nil
}

// Add assigns a fresh id, appends the profile and persists the list.
func (r *Registry) Add(ctx context.Context, d Draft) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return Profile{}, err
	}

	p := Profile{
		ID:       uuid.NewString(),
		Name:     d.Name,
		Host:     d.Host,
		Port:     d.Port,
		Username: d.Username,
	}
	r.profiles = append(r.profiles, p)
	if err := r.persistLocked(ctx); err != nil {
		return p, err
	}
	log.Printf("[registry] added profile %s (%s)", p.ID, logutil.Target(p.Username, p.Host, p.Port))
	return p, nil
}

// Update replaces the profile with the same id. It returns false, without
// persisting, when no profile matches.
func (r *Registry) Update(ctx context.Context, p Profile) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return false, err
	}

	i := r.indexLocked(p.ID)
	if i < 0 {
		log.Printf("[registry] update: profile %s not found", logutil.SanitizeForLog(p.ID))
		return false, nil
	}
	next := make([]Profile, len(r.profiles))
	copy(next, r.profiles)
	next[i] = p
	r.profiles = next
	if err := r.persistLocked(ctx); err != nil {
		return true, err
	}
	log.Printf("[registry] updated profile %s", p.ID)
	return true, nil
}

// Delete removes the profile with id. It returns false, without persisting,
// when no profile matches.
func (r *Registry) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ready(); err != nil {
		return false, err
	}

	i := r.indexLocked(id)
	if i < 0 {
		log.Printf("[registry] delete: profile %s not found", logutil.SanitizeForLog(id))
		return false, nil
	}
	next := make([]Profile, 0, len(r.profiles)-1)
	next = append(next, r.profiles[:i]...)
	next = append(next, r.profiles[i+1:]...)
	r.profiles = next
	if err := r.persistLocked(ctx); err != nil {
		return true, err
	}
	log.Printf("[registry] deleted profile %s", id)
	return true, nil
}

func (r *Registry) indexLocked(id string) int {
	for i, p := range r.profiles {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) persistLocked(ctx context.Context) error {
	list := r.profiles
	if list == nil {
		list = []Profile{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode profiles: %w", err)
	}
	sealed, err := r.sealer.Seal(data)
	if err != nil {
		return fmt.Errorf("seal profiles: %w", err)
	}
	if err := r.store.SetSetting(ctx, database.KeyProfiles, sealed); err != nil {
		return fmt.Errorf("persist profiles: %w", err)
	}
	return nil
}
