package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/rlp"

	core "movesqlize/core"
)

// archiveEntry is the RLP-encodable, flattened form of one WriteSetOp.
// rlp.Encode wants fixed shapes, not the *ModuleID/*StructTag optional
// pointers AccessPathKind carries, so a block's write-set is lowered into
// this shape before being appended to the archive file — the same role
// core/ledger.go's gzip-the-WAL step played in the teacher, swapped here
// for RLP-over-go-ethereum as a teacher-carried dependency.
type archiveEntry struct {
	Address      [32]byte
	IsCode       bool
	ModuleAddr   [32]byte
	ModuleName   string
	StructTagStr string
	IsDeletion   bool
	Value        []byte
}

// WriteSetArchive appends replayed write-sets to an append-only file,
// independent of the SQLite projection — SPEC_FULL.md §3's optional
// write-set archive, wired to exercise ethereum/go-ethereum/rlp the way
// ledger.go gzipped its own WAL.
type WriteSetArchive struct {
	path string
}

// NewWriteSetArchive opens (creating if absent) the archive file at path.
func NewWriteSetArchive(path string) (*WriteSetArchive, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open write-set archive %s: %w", path, err)
	}
	_ = f.Close()
	return &WriteSetArchive{path: path}, nil
}

// Append RLP-encodes a block's write-set as a length-prefixed record and
// appends it to the archive file.
func (a *WriteSetArchive) Append(height uint64, ops []core.WriteSetOp) error {
	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open write-set archive %s: %w", a.path, err)
	}
	defer f.Close()

	entries := make([]archiveEntry, len(ops))
	for i, op := range ops {
		e := archiveEntry{Address: op.Path.Address, IsDeletion: op.Op.Kind == core.WriteOpDeletion, Value: op.Op.Value}
		switch {
		case op.Path.Path.Code != nil:
			e.IsCode = true
			e.ModuleAddr = op.Path.Path.Code.Address
			e.ModuleName = string(op.Path.Path.Code.Name)
		case op.Path.Path.Resource != nil:
			e.StructTagStr = op.Path.Path.Resource.String()
		}
		entries[i] = e
	}

	body, err := rlp.EncodeToBytes(entries)
	if err != nil {
		return fmt.Errorf("rlp encode write-set for block %d: %w", height, err)
	}

	var header [16]byte
	binary.BigEndian.PutUint64(header[:8], height)
	binary.BigEndian.PutUint64(header[8:], uint64(len(body)))
	if _, err := f.Write(header[:]); err != nil {
		return fmt.Errorf("write archive header for block %d: %w", height, err)
	}
	if _, err := f.Write(body); err != nil {
		return fmt.Errorf("write archive body for block %d: %w", height, err)
	}
	return nil
}
