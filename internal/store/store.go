// Package store keeps the agent's small persistent state in a badger database.
package store

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// PrinterAddressKey holds the last connected printer address.
const PrinterAddressKey = "printer/last_address"

// BadgerStore is a key-mapped store. Its zero value is not usable; call Open.
type BadgerStore struct {
	db *badger.DB
}

// Open opens (or creates) the database in dir.
func Open(dir string) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	opts := badger.DefaultOptions(dir).
		WithValueLogFileSize(1 << 20).
		WithMemTableSize(16 << 20).
		WithNumMemtables(2).
		WithSyncWrites(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &BadgerStore{db: db}, nil
}

// OpenInMemory returns a store that lives only as long as the process.
func OpenInMemory() (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory badger db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// GetString returns the value of key; ok is false when the key is absent.
func (s *BadgerStore) GetString(key string) (string, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}

	return string(value), true, nil
}

func (s *BadgerStore) SetString(key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// AddressStore adapts one key of a BadgerStore to printer.AddressStore.
type AddressStore struct {
	s   *BadgerStore
	key string
}

func (s *BadgerStore) PrinterAddress() *AddressStore {
	return &AddressStore{s: s, key: PrinterAddressKey}
}

// Get treats an empty stored value the same as a missing key.
func (a *AddressStore) Get() (string, bool, error) {
	v, ok, err := a.s.GetString(a.key)
	if err != nil || !ok || v == "" {
		return "", false, err
	}
	return v, true, nil
}

func (a *AddressStore) Set(address string) error {
	return a.s.SetString(a.key, address)
}

func (a *AddressStore) Clear() error {
	return a.s.Delete(a.key)
}
