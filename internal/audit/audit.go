// Package audit keeps a persistent trail of privileged requests. Every
// command, update, and uninstall request is recorded with its outcome in a
// local bbolt database, keyed by a monotonically increasing sequence number
// so entries read back in arrival order. The store is bounded: appending
// past the configured size drops the oldest entries.
package audit

import (
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

const auditBucket = "audit_entries"

// defaultKeep bounds the store when no explicit limit is configured.
const defaultKeep = 1000

// Kind names the class of request an entry records.
type Kind string

const (
	KindCommand   Kind = "command"
	KindUpdate    Kind = "update"
	KindUninstall Kind = "uninstall"
)

// Outcome values recorded per entry.
const (
	OutcomeOK        = "ok"        // request carried out
	OutcomeDenied    = "denied"    // authorization rejected
	OutcomeRefused   = "refused"   // update gate refused the candidate
	OutcomeError     = "error"     // spawn or internal failure
	OutcomeRequested = "requested" // accepted for handling whose success ends the process
)

// Entry is one audited request.
type Entry struct {
	ID       uint64    `json:"id"`
	Time     time.Time `json:"time"`
	Kind     Kind      `json:"kind"`
	Command  string    `json:"command,omitempty"`
	Right    string    `json:"right,omitempty"`
	Outcome  string    `json:"outcome"`
	Detail   string    `json:"detail,omitempty"`
	ExitCode *int      `json:"exit_code,omitempty"`
	PeerUID  *uint32   `json:"peer_uid,omitempty"`
}

// Store is the on-disk audit trail.
type Store struct {
	db   *bolt.DB
	keep int
}

// Open opens or creates the audit database at path. At most keep entries
// are retained; older ones are dropped as new ones arrive.
func Open(path string, keep int) (*Store, error) {
	if keep <= 0 {
		keep = defaultKeep
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(auditBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, keep: keep}, nil
}

// Append records an entry, assigning its sequence ID and timestamp if
// unset, and prunes the oldest entries beyond the retention bound.
func (s *Store) Append(e *Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(auditBucket))

		id, _ := b.NextSequence()
		e.ID = id

		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := b.Put(itob(id), data); err != nil {
			return err
		}

		return prune(b, s.keep)
	})
}

// Tail returns the newest limit entries in chronological order.
func (s *Store) Tail(limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(auditBucket))
		c := b.Cursor()

		for k, v := c.Last(); k != nil && len(entries) < limit; k, v = c.Prev() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Walked newest-first; flip to chronological.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Count returns the number of retained entries.
func (s *Store) Count() (int, error) {
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(auditBucket))
		return b.ForEach(func(k, v []byte) error {
			count++
			return nil
		})
	})
	return count, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// prune deletes oldest entries until at most keep remain.
func prune(b *bolt.Bucket, keep int) error {
	count := 0
	if err := b.ForEach(func(k, v []byte) error {
		count++
		return nil
	}); err != nil {
		return err
	}

	c := b.Cursor()
	for k, _ := c.First(); k != nil && count > keep; k, _ = c.Next() {
		if err := c.Delete(); err != nil {
			return err
		}
		count--
	}
	return nil
}

// itob converts uint64 to big-endian bytes for ordered keys.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
