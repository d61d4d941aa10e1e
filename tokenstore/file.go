package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// DefaultProfile is the profile name used when none is configured.
const DefaultProfile = "default"

// fileEntry is one profile's tokens as written to disk.
type fileEntry struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// fileDocument is the on-disk layout; several profiles share one file.
type fileDocument struct {
	Tokens map[string]*fileEntry `json:"tokens"` // key = profile
}

// File is a Store persisted as JSON on disk. Every read goes to the file so that
// changes made by other processes are picked up. Mutations are serialized in-process
// and across processes with a lock file, and land through a temp file + rename.
type File struct {
	path    string
	profile string
	lock    lockOptions

	mu sync.Mutex
}

// NewFile returns a File store for profile inside the token file at path.
func NewFile(path, profile string) *File {
	if profile == "" {
		profile = DefaultProfile
	}
	return &File{path: path, profile: profile, lock: defaultLockOptions()}
}

// Path returns the token file location.
func (f *File) Path() string { return f.path }

// Profile returns the profile this store reads and writes.
func (f *File) Profile() string { return f.profile }

func (f *File) Get() (Pair, error) {
	doc, err := readDocument(f.path)
	if err != nil {
		return Pair{}, err
	}
	entry, ok := doc.Tokens[f.profile]
	if !ok || entry == nil {
		return Pair{}, nil
	}
	return Pair{Access: entry.AccessToken, Refresh: entry.RefreshToken}, nil
}

func (f *File) Set(access, refresh string) error {
	return f.update(func(e *fileEntry) bool {
		e.AccessToken = access
		e.RefreshToken = refresh
		return true
	})
}

func (f *File) SetAccess(access string) error {
	return f.update(func(e *fileEntry) bool {
		e.AccessToken = access
		return true
	})
}

func (f *File) ClearAccess() error {
	return f.update(func(e *fileEntry) bool {
		e.AccessToken = ""
		return true
	})
}

func (f *File) Clear() error {
	return f.update(func(*fileEntry) bool { return false })
}

// update applies fn to this profile's entry under both locks and writes the file.
// When fn returns false the profile is removed.
func (f *File) update(fn func(*fileEntry) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	lock, err := acquireFileLock(f.path, f.lock)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if releaseErr := lock.release(); releaseErr != nil {
			fmt.Fprintf(os.Stderr, "failed to release lock: %v\n", releaseErr)
		}
	}()

	doc, err := readDocument(f.path)
	if err != nil {
		// a corrupt file is replaced rather than blocking logout forever
		doc = &fileDocument{}
	}
	if doc.Tokens == nil {
		doc.Tokens = make(map[string]*fileEntry)
	}

	entry := doc.Tokens[f.profile]
	if entry == nil {
		entry = &fileEntry{}
	}
	if fn(entry) {
		entry.UpdatedAt = time.Now().UTC()
		doc.Tokens[f.profile] = entry
	} else {
		delete(doc.Tokens, f.profile)
	}

	return writeDocument(f.path, doc)
}

func readDocument(path string) (*fileDocument, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &fileDocument{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	if len(data) == 0 {
		return &fileDocument{}, nil
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &doc, nil
}

func writeDocument(path string, doc *fileDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		if removeErr := os.Remove(tmp); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
