package core

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/sirupsen/logrus"
)

// ModuleStore persists compiled module bytes keyed by (address, name). No
// caching happens here by design — the Resolver owns the decoded-module
// cache (§4.2); this type is purely the §4.1 persistence contract plus the
// content-addressing supplement from SPEC_FULL.md §4.1.
type ModuleStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewModuleStore wires a ModuleStore over an already-open database handle,
// matching the teacher's explicit-constructor-with-injected-logger idiom
// (core/storage.go's NewStorage(cfg, lg, led)).
func NewModuleStore(db *sql.DB, lg *logrus.Logger) (*ModuleStore, error) {
	if db == nil {
		return nil, errors.New("modulestore: nil db")
	}
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS __module (
		address BLOB NOT NULL,
		name STRING NOT NULL,
		data BLOB NOT NULL,
		cid STRING NOT NULL,
		CONSTRAINT __module_pkey PRIMARY KEY (address, name)
	)`); err != nil {
		return nil, fmt.Errorf("%w: create __module: %v", ErrDatabaseError, err)
	}
	return &ModuleStore{db: db, logger: lg}, nil
}

// moduleCID computes a CIDv1 over module bytes, the same content-addressing
// scheme core/storage.go's Pin used for pinned blobs in the teacher repo.
func moduleCID(data []byte) (string, error) {
	encodedMH, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return cid.NewCidV1(cid.Raw, encodedMH).String(), nil
}

// Put inserts module bytes. Republishing the same
// (address, name) is an error — on-chain republish is not expected at this
// layer — per spec.md §4.1 and the "republishing" open question in §9,
// preserved rather than silently accepted.
//
// Put takes a querier rather than always reaching for s.db so a module
// publish inside a block's write-set shares that block's transaction —
// otherwise a rolled-back block would leave an already-committed module
// behind, violating §5's all-or-nothing block semantics.
func (s *ModuleStore) Put(q querier, address Address, name Identifier, data []byte) error {
	c, err := moduleCID(data)
	if err != nil {
		return fmt.Errorf("%w: cid: %v", ErrDatabaseError, err)
	}
	_, err = q.Exec(`INSERT INTO __module (address, name, data, cid) VALUES (?, ?, ?, ?)`,
		address.Bytes(), string(name), data, c)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return fmt.Errorf("%w: %s::%s", ErrAlreadyPublished, address.Short(), name)
		}
		return fmt.Errorf("%w: put module %s::%s: %v", ErrDatabaseError, address.Short(), name, err)
	}
	s.logger.Infof("modulestore: published %s::%s (%d bytes, %s)", address.Short(), name, len(data), c)
	return nil
}

// Get returns stored bytes, or (nil, false) on absence. If the row's
// recomputed CID disagrees with the stored one, the row is treated as
// corrupt and ErrDatabaseError is returned instead of handing the VM
// tampered bytes.
func (s *ModuleStore) Get(q querier, address Address, name Identifier) ([]byte, bool, error) {
	var data []byte
	var storedCID string
	row := q.QueryRow(`SELECT data, cid FROM __module WHERE address = ? AND name = ?`, address.Bytes(), string(name))
	if err := row.Scan(&data, &storedCID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: get module %s::%s: %v", ErrDatabaseError, address.Short(), name, err)
	}
	gotCID, err := moduleCID(data)
	if err != nil {
		return nil, false, fmt.Errorf("%w: cid: %v", ErrDatabaseError, err)
	}
	if gotCID != storedCID {
		return nil, false, fmt.Errorf("%w: module %s::%s failed integrity check: stored cid %s, computed %s",
			ErrDatabaseError, address.Short(), name, storedCID, gotCID)
	}
	return data, true, nil
}

// Delete removes a module row. Implemented straightforwardly per the §9
// open-question decision recorded in DESIGN.md, rather than left
// unimplemented.
func (s *ModuleStore) Delete(q querier, address Address, name Identifier) error {
	res, err := q.Exec(`DELETE FROM __module WHERE address = ? AND name = ?`, address.Bytes(), string(name))
	if err != nil {
		return fmt.Errorf("%w: delete module %s::%s: %v", ErrDatabaseError, address.Short(), name, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: module %s::%s", ErrModuleNotFound, address.Short(), name)
	}
	s.logger.Infof("modulestore: unpublished %s::%s", address.Short(), name)
	return nil
}

// isUniqueConstraintErr matches on the message mattn/go-sqlite3 surfaces
// for a PRIMARY KEY violation, rather than importing the driver package
// here (it's only needed where sql.Open is called).
func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
