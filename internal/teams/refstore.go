package teams

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// ReferenceStore persists conversation references for proactive messaging.
// References are stored under both the user id and the user display name so
// callers can address either.
type ReferenceStore struct {
	path   string
	mu     sync.RWMutex
	refs   map[string]ConversationReference
	logger *logrus.Logger
}

// RefStats summarizes the stored references
type RefStats struct {
	TotalUsers  int      `json:"total_users"`
	Users       []string `json:"users"`
	StorageFile string   `json:"storage_file"`
}

// NewReferenceStore loads the reference store from disk, starting empty when
// the file does not exist or cannot be parsed
func NewReferenceStore(path string, logger *logrus.Logger) (*ReferenceStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure refs dir: %w", err)
	}

	s := &ReferenceStore{
		path:   path,
		refs:   make(map[string]ConversationReference),
		logger: logger,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WithError(err).Warn("Failed to read conversation references, starting empty")
		}
		return s, nil
	}

	if err := json.Unmarshal(data, &s.refs); err != nil {
		logger.WithError(err).Warn("Failed to parse conversation references, starting empty")
		s.refs = make(map[string]ConversationReference)
		return s, nil
	}

	logger.WithField("count", len(s.refs)).Info("Loaded conversation references")
	return s, nil
}

// Store saves a conversation reference under the given key
func (s *ReferenceStore) Store(key string, ref ConversationReference) error {
	if key == "" {
		return fmt.Errorf("reference key is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.refs[key] = ref
	return s.saveLocked()
}

// Get returns the reference stored under key, or nil when absent
func (s *ReferenceStore) Get(key string) *ConversationReference {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ref, ok := s.refs[key]; ok {
		copied := ref
		return &copied
	}
	return nil
}

// Resolve finds a reference by exact key first, then by case-insensitive
// partial match against the stored keys. Returns the matched key and the
// reference, or empty key and nil.
func (s *ReferenceStore) Resolve(userID string) (string, *ConversationReference) {
	if ref := s.Get(userID); ref != nil {
		return userID, ref
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(userID)
	for key, ref := range s.refs {
		stored := strings.ToLower(key)
		if needle != "" && (strings.Contains(stored, needle) || strings.Contains(needle, stored)) {
			copied := ref
			return key, &copied
		}
	}
	return "", nil
}

// Remove deletes a stored reference, reporting whether it existed
func (s *ReferenceStore) Remove(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refs[key]; !ok {
		return false, nil
	}
	delete(s.refs, key)
	return true, s.saveLocked()
}

// Users lists the keys with stored references, sorted
func (s *ReferenceStore) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.refs))
	for key := range s.refs {
		users = append(users, key)
	}
	sort.Strings(users)
	return users
}

// Stats returns store statistics for the debug endpoint
func (s *ReferenceStore) Stats() RefStats {
	users := s.Users()
	return RefStats{
		TotalUsers:  len(users),
		Users:       users,
		StorageFile: s.path,
	}
}

func (s *ReferenceStore) saveLocked() error {
	data, err := json.MarshalIndent(s.refs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal references: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write references: %w", err)
	}
	return nil
}
