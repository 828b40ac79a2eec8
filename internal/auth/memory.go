package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps principals and their backup-code hashes in process.
// It serves tests and single-node development runs.
type MemoryStore struct {
	mu          sync.Mutex
	principals  map[string]Principal
	byEmail     map[string]string
	backupCodes map[string]map[string]bool // principal -> hash -> used
	now         func() time.Time
}

var _ PrincipalStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		principals:  make(map[string]Principal),
		byEmail:     make(map[string]string),
		backupCodes: make(map[string]map[string]bool),
		now:         time.Now,
	}
}

func (s *MemoryStore) CreatePrincipal(_ context.Context, p Principal) (Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Email = NormalizeEmail(p.Email)
	if _, ok := s.byEmail[p.Email]; ok {
		return Principal{}, fmt.Errorf("%w: email already registered", ErrConflict)
	}
	if _, ok := s.principals[p.ID]; ok {
		return Principal{}, ErrConflict
	}
	s.principals[p.ID] = p
	s.byEmail[p.Email] = p.ID
	return p, nil
}

func (s *MemoryStore) GetPrincipal(_ context.Context, id string) (Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) GetPrincipalByEmail(_ context.Context, email string) (Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return s.principals[id], nil
}

func (s *MemoryStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return s.update(id, func(p *Principal) error {
		p.PasswordHash = passwordHash
		return nil
	})
}

// SetPendingMFASecret stores an unconfirmed secret, replacing an earlier
// pending one. It fails with ErrConflict once enrollment is confirmed.
func (s *MemoryStore) SetPendingMFASecret(_ context.Context, id, secret string) error {
	return s.update(id, func(p *Principal) error {
		if p.MFAEnabled {
			return ErrConflict
		}
		p.MFASecret = secret
		return nil
	})
}

// EnableMFA confirms a pending enrollment and installs the backup-code hashes
// in the same critical section.
func (s *MemoryStore) EnableMFA(_ context.Context, id string, codeHashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return ErrNotFound
	}
	if p.MFAEnabled || p.MFASecret == "" {
		return ErrConflict
	}
	p.MFAEnabled = true
	p.UpdatedAt = s.now().UTC()
	s.principals[id] = p
	s.backupCodes[id] = hashSet(codeHashes)
	return nil
}

// ReplaceBackupCodes discards every existing code for the principal.
func (s *MemoryStore) ReplaceBackupCodes(_ context.Context, id string, codeHashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.principals[id]; !ok {
		return ErrNotFound
	}
	s.backupCodes[id] = hashSet(codeHashes)
	return nil
}

// ConsumeBackupCode marks an unused code as used. It reports false when the
// code is unknown or already spent.
func (s *MemoryStore) ConsumeBackupCode(_ context.Context, id, codeHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := s.backupCodes[id]
	used, ok := codes[codeHash]
	if !ok || used {
		return false, nil
	}
	codes[codeHash] = true
	return true, nil
}

// CountBackupCodes returns the number of unused codes.
func (s *MemoryStore) CountBackupCodes(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, used := range s.backupCodes[id] {
		if !used {
			n++
		}
	}
	return n, nil
}

// DisableMFA clears the secret and every backup code.
func (s *MemoryStore) DisableMFA(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return ErrNotFound
	}
	p.MFAEnabled = false
	p.MFASecret = ""
	p.UpdatedAt = s.now().UTC()
	s.principals[id] = p
	delete(s.backupCodes, id)
	return nil
}

func (s *MemoryStore) update(id string, fn func(*Principal) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(&p); err != nil {
		return err
	}
	p.UpdatedAt = s.now().UTC()
	s.principals[id] = p
	return nil
}

func hashSet(hashes []string) map[string]bool {
	set := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		set[h] = false
	}
	return set
}
