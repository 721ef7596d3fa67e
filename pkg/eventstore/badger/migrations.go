package badger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Version is the layout of keys this package writes.
const Version = 1

func (b *Backend) runMigrations() (err error) {
	return b.Update(func(txn *badger.Txn) (err error) {
		var version uint16
		var item *badger.Item
		item, err = txn.Get([]byte{dbVersionKey})
		if errors.Is(err, badger.ErrKeyNotFound) {
			version = 0
		} else if err != nil {
			return
		} else {
			chk.E(item.Value(func(val []byte) (err error) {
				version = binary.BigEndian.Uint16(val)
				return nil
			}))
		}
		if version > Version {
			return fmt.Errorf("event cache is at version %d, newer than %d",
				version, Version)
		}
		// do the migrations in increasing steps (there is no rollback)
		if version < 1 {
			log.D.Ln("initializing event cache at version", Version)
			if err = b.bumpVersion(txn, 1); chk.E(err) {
				return
			}
		}
		return nil
	})
}

func (b *Backend) bumpVersion(txn *badger.Txn, version uint16) (err error) {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, version)
	return txn.Set([]byte{dbVersionKey}, buf)
}
