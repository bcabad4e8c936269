package users

import (
	"encoding/json"
	"fmt"
)

// Session keys holding the user record.
const (
	RecordKey  = "user"
	pendingKey = "user_authenticating"
)

// Storage is the key/value store a record lives in. *shared.Session
// satisfies it.
type Storage interface {
	Get(key string) string
	Set(key, value string)
	Delete(key string)
}

// LoadRecord reads the stored record. It returns nil without error when
// nothing is stored or the record was written by a newer layout.
func LoadRecord(st Storage) (*Record, error) {
	if st == nil {
		return nil, nil
	}
	raw := st.Get(RecordKey)
	if raw == "" {
		return nil, nil
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("users: decode record: %w", err)
	}
	if rec.SchemaVersion > SchemaVersion {
		return nil, nil
	}
	return &rec, nil
}

// SaveRecord writes rec, stamping the current schema version. Writes are
// last-writer-wins.
func SaveRecord(st Storage, rec Record) error {
	rec.SchemaVersion = SchemaVersion
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("users: encode record: %w", err)
	}
	st.Set(RecordKey, string(payload))
	st.Delete(pendingKey)
	return nil
}

// ClearRecord forgets the user.
func ClearRecord(st Storage) {
	st.Delete(RecordKey)
	st.Delete(pendingKey)
}

// State derives the sync state from what is stored.
func State(st Storage) SyncState {
	rec, err := LoadRecord(st)
	if err != nil || rec == nil {
		if st != nil && st.Get(pendingKey) != "" {
			return Authenticating
		}
		return Unauthenticated
	}
	if rec.Permissions == nil {
		return AuthenticatedNoPermissions
	}
	return AuthenticatedSynced
}
