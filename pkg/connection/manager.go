// Package connection caches negotiated data-transfer sessions so repeated
// requests for the same counterparty, asset query and policy set reuse an
// existing transfer instead of renegotiating a contract.
//
// Two backends implement Manager: MemoryManager keeps entries for the
// lifetime of the process, RedisManager shares them between gateway
// replicas.
package connection

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/mitchellh/copystructure"
	"golang.org/x/crypto/sha3"
)

// ErrInvalidEntry is returned by Put when the entry has no usable transfer id.
var ErrInvalidEntry = errors.New("invalid connection entry")

// Entry is a negotiated EDR/transfer session descriptor as returned by the
// connector. The cache treats it as opaque apart from the transfer id field.
type Entry map[string]any

// Manager stores at most one Entry per Key.
//
// Lookups of absent keys are not errors: Get and TransferID report false,
// Delete reports false.
type Manager interface {
	// Put stores a sanitized deep copy of entry and returns its transfer id.
	Put(ctx context.Context, key Key, entry Entry) (string, error)
	// Get returns a deep copy of the stored entry.
	Get(ctx context.Context, key Key) (Entry, bool, error)
	TransferID(ctx context.Context, key Key) (string, bool, error)
	Delete(ctx context.Context, key Key) (bool, error)
	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)
	// TransferIDKey is the entry field Put reads the transfer id from.
	TransferIDKey() string
}

// Options configure how entries are validated and sanitized.
type Options struct {
	// TransferIDKey is the entry field holding the transfer process id.
	TransferIDKey string

	// ExcludedFields are JSON-LD envelope fields removed before storage.
	ExcludedFields []string
}

// DefaultOptions match the EDR entries returned by the EDC management API.
func DefaultOptions() Options {
	return Options{
		TransferIDKey:  "transferProcessId",
		ExcludedFields: []string{"@type", "providerId", "@context"},
	}
}

func (o Options) withDefaults() Options {
	if o.TransferIDKey == "" {
		o.TransferIDKey = DefaultOptions().TransferIDKey
	}
	if o.ExcludedFields == nil {
		o.ExcludedFields = DefaultOptions().ExcludedFields
	}
	return o
}

// sanitize validates entry and returns a deep copy without envelope fields.
func (o Options) sanitize(entry Entry) (Entry, string, error) {
	transferID, ok := transferID(entry, o.TransferIDKey)
	if !ok {
		return nil, "", fmt.Errorf("%w: field %q missing or empty (entry keys: %v)",
			ErrInvalidEntry, o.TransferIDKey, entryKeys(entry))
	}

	saved, err := deepCopy(entry)
	if err != nil {
		return nil, "", fmt.Errorf("copy connection entry: %w", err)
	}
	for _, field := range o.ExcludedFields {
		delete(saved, field)
	}
	return saved, transferID, nil
}

func transferID(entry Entry, key string) (string, bool) {
	id, ok := entry[key].(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func deepCopy(entry Entry) (Entry, error) {
	if entry == nil {
		return nil, nil
	}
	copied, err := copystructure.Copy(map[string]any(entry))
	if err != nil {
		return nil, err
	}
	return Entry(copied.(map[string]any)), nil
}

func entryKeys(entry Entry) []string {
	keys := make([]string, 0, len(entry))
	for k := range entry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Checksum returns the SHA3-256 hex digest of v's JSON encoding. Map keys are
// encoded in sorted order, so equal content yields equal checksums.
func Checksum(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal checksum input: %w", err)
	}
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
