// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blinklabs-io/kennel/event"
	badger "github.com/dgraph-io/badger/v4"
)

// Journal is an append-only record of published domain events, stored
// in Badger under monotonic big-endian sequence keys so iteration
// returns events in publish order. Data may not be persisted when
// running in-memory.
type Journal struct {
	db      *badger.DB
	logger  *slog.Logger
	dataDir string
	nextSeq uint64
	sync.Mutex
}

// JournalEntry is the persisted form of one event.
type JournalEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	Type      event.EventType `json:"type"`
	Seq       uint64          `json:"seq"`
	Data      json.RawMessage `json:"data"`
}

// NewJournal creates an event journal. Uses in-memory storage if
// dataDir is empty.
func NewJournal(dataDir string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var journalDb *badger.DB
	var err error
	if dataDir == "" {
		badgerOpts := badger.DefaultOptions("").
			WithLogger(NewBadgerLogger(logger)).
			// The default INFO logging is a bit verbose
			WithLoggingLevel(badger.WARNING).
			WithInMemory(true)
		journalDb, err = badger.Open(badgerOpts)
		if err != nil {
			return nil, err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		journalDir := filepath.Join(
			dataDir,
			"journal",
		)
		badgerOpts := badger.DefaultOptions(journalDir).
			WithLogger(NewBadgerLogger(logger)).
			WithLoggingLevel(badger.WARNING)
		journalDb, err = badger.Open(badgerOpts)
		if err != nil {
			return nil, err
		}
	}
	j := &Journal{
		db:      journalDb,
		logger:  logger,
		dataDir: dataDir,
	}
	if err := j.init(); err != nil {
		journalDb.Close()
		return nil, err
	}
	return j, nil
}

// init recovers the next sequence number from the last stored key.
func (j *Journal) init() error {
	return j.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Reverse = true
		iterOpts.PrefetchValues = false
		iter := txn.NewIterator(iterOpts)
		defer iter.Close()
		iter.Seek(
			[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		)
		if iter.Valid() {
			key := iter.Item().Key()
			if len(key) == 8 {
				j.nextSeq = binary.BigEndian.Uint64(key) + 1
			}
		}
		return nil
	})
}

// Append records an event at the next sequence number.
func (j *Journal) Append(evt event.Event) error {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	j.Lock()
	defer j.Unlock()
	entry := JournalEntry{
		Seq:       j.nextSeq,
		Type:      evt.Type,
		Timestamp: evt.Timestamp,
		Data:      data,
	}
	value, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("failed to encode journal entry: %w", err)
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, entry.Seq)
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return err
	}
	j.nextSeq++
	return nil
}

// Entries returns up to limit entries starting at sequence number
// start. A limit of zero means no limit.
func (j *Journal) Entries(start uint64, limit int) ([]JournalEntry, error) {
	var ret []JournalEntry
	err := j.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.DefaultIteratorOptions)
		defer iter.Close()
		startKey := make([]byte, 8)
		binary.BigEndian.PutUint64(startKey, start)
		for iter.Seek(startKey); iter.Valid(); iter.Next() {
			if limit > 0 && len(ret) >= limit {
				break
			}
			value, err := iter.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var entry JournalEntry
			if err := json.Unmarshal(value, &entry); err != nil {
				return fmt.Errorf(
					"failed to decode journal entry: %w",
					err,
				)
			}
			ret = append(ret, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// NextSeq returns the sequence number the next appended event will get.
func (j *Journal) NextSeq() uint64 {
	j.Lock()
	defer j.Unlock()
	return j.nextSeq
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
