package symlinkstore

import (
	"go.etcd.io/bbolt"

	"github.com/tjfontaine/wasihost/internal/pathutil"
)

var symlinksBucket = []byte("symlinks")

// Bolt is a Store backed by a single go.etcd.io/bbolt file, one bucket,
// keyed by canonical path with the target as the value. This is the
// indexed key-value table spec §6 calls for ("a separate indexed store
// holds symlinks in a single table with schema { path, target }").
type Bolt struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if absent) a bbolt database at path and ensures
// the symlinks bucket exists.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(symlinksBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) LoadAll() (map[pathutil.Canonical]string, error) {
	out := make(map[pathutil.Canonical]string)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(symlinksBucket)
		return bucket.ForEach(func(k, v []byte) error {
			out[pathutil.Canonical(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bolt) Put(path pathutil.Canonical, target string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(symlinksBucket).Put([]byte(path), []byte(target))
	})
}

func (b *Bolt) Delete(path pathutil.Canonical) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(symlinksBucket).Delete([]byte(path))
	})
}

// DeletePrefix scans the whole bucket, since bbolt's byte-ordered cursor
// doesn't let us express "strict descendant of a slash-joined path" as a
// single range scan once the prefix itself is also a valid entry name with
// siblings like "prefix-sibling" that must NOT match.
func (b *Bolt) DeletePrefix(prefix pathutil.Canonical) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(symlinksBucket)
		var stale [][]byte
		err := bucket.ForEach(func(k, _ []byte) error {
			if pathutil.IsStrictDescendant(pathutil.Canonical(k), prefix) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
