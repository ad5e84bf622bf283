// Package docstore implements a keyed document store on top of gorm. Documents live in
// slash separated collection paths and carry a JSON payload; the API mirrors a hosted
// document database: set (optionally merging), update, delete, get, field queries and
// bounded write batches.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/smartpost/internal/models"
)

// MaxBatchOps is the platform ceiling on operations committed by one write batch.
const MaxBatchOps = 500

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrEmptyUpdate is returned by Update when no fields were supplied.
	ErrEmptyUpdate = errors.New("docstore: update requires at least one field")
	// ErrBatchTooLarge is returned when a batch exceeds MaxBatchOps.
	ErrBatchTooLarge = errors.New("docstore: batch exceeds maximum operation count")
	// ErrAlreadyExists is returned by Create when the document exists.
	ErrAlreadyExists = errors.New("docstore: document already exists")
	// ErrInvalidPath is returned for empty collection paths or document ids.
	ErrInvalidPath = errors.New("docstore: collection and document id are required")
)

// Store is the document database contract consumed by the rest of the application.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Snapshot, error)
	Create(ctx context.Context, collection, id string, data map[string]any) error
	Set(ctx context.Context, collection, id string, data map[string]any, opts ...SetOption) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Collection(path string) *Query
	Batch() *WriteBatch
	Now() time.Time
}

// Snapshot is a document read from the store.
type Snapshot struct {
	Collection string
	ID         string
	Data       map[string]any
	CreateTime time.Time
	UpdateTime time.Time
}

// DataTo decodes the document payload into dst using its JSON field tags.
func (s *Snapshot) DataTo(dst any) error {
	if s == nil {
		return ErrNotFound
	}
	raw, err := json.Marshal(s.Data)
	if err != nil {
		return fmt.Errorf("docstore: encode snapshot: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("docstore: decode snapshot %s/%s: %w", s.Collection, s.ID, err)
	}
	return nil
}

// SetOption customises a Set call.
type SetOption func(*setOptions)

type setOptions struct {
	merge      bool
	insertOnly map[string]any
}

// Merge performs a field-level merge with the existing document instead of replacing it.
func Merge() SetOption {
	return func(o *setOptions) {
		o.merge = true
	}
}

// InsertOnly supplies top-level fields that are written only when the target field is
// absent, typically on document creation. Existing values are never overwritten.
func InsertOnly(fields map[string]any) SetOption {
	return func(o *setOptions) {
		if o.insertOnly == nil {
			o.insertOnly = map[string]any{}
		}
		for key, value := range fields {
			o.insertOnly[key] = value
		}
	}
}

// Option customises the GormStore.
type Option func(*GormStore)

// WithClock overrides the clock used for server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *GormStore) {
		if now != nil {
			s.now = now
		}
	}
}

// GormStore persists documents in the documents table.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ Store = (*GormStore)(nil)

// NewGormStore constructs a document store backed by db.
func NewGormStore(db *gorm.DB, opts ...Option) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("docstore: db is required")
	}
	store := &GormStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Now returns the current store time in UTC.
func (s *GormStore) Now() time.Time {
	return s.now().UTC()
}

// Get loads a single document.
func (s *GormStore) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	collection, id, err := cleanPath(collection, id)
	if err != nil {
		return nil, err
	}
	row, err := findRow(s.db.WithContext(ctx), collection, id, false)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrNotFound
	}
	return toSnapshot(row), nil
}

// Create writes a new document and fails with ErrAlreadyExists when id is taken.
func (s *GormStore) Create(ctx context.Context, collection, id string, data map[string]any) error {
	op, err := newSetOp(collection, id, data, nil)
	if err != nil {
		return err
	}
	return s.transact(ctx, func(tx *gorm.DB, now time.Time) error {
		row, err := findRow(tx, op.collection, op.id, true)
		if err != nil {
			return err
		}
		if row != nil {
			return fmt.Errorf("%w: %s/%s", ErrAlreadyExists, op.collection, op.id)
		}
		return applySet(tx, op, now)
	})
}

// Set writes data to the document, creating it when absent.
func (s *GormStore) Set(ctx context.Context, collection, id string, data map[string]any, opts ...SetOption) error {
	op, err := newSetOp(collection, id, data, opts)
	if err != nil {
		return err
	}
	return s.transact(ctx, func(tx *gorm.DB, now time.Time) error {
		return applySet(tx, op, now)
	})
}

// Update overwrites the supplied fields of an existing document. Dotted keys address
// nested fields.
func (s *GormStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	op, err := newUpdateOp(collection, id, fields)
	if err != nil {
		return err
	}
	return s.transact(ctx, func(tx *gorm.DB, now time.Time) error {
		return applyUpdate(tx, op, now)
	})
}

// Delete removes a document; deleting a missing document is not an error.
func (s *GormStore) Delete(ctx context.Context, collection, id string) error {
	collection, id, err := cleanPath(collection, id)
	if err != nil {
		return err
	}
	return applyDelete(s.db.WithContext(ctx), writeOp{collection: collection, id: id})
}

// Collection starts a query over the documents stored directly under path.
func (s *GormStore) Collection(path string) *Query {
	return &Query{store: s, collection: strings.Trim(strings.TrimSpace(path), "/")}
}

// Batch starts a new write batch.
func (s *GormStore) Batch() *WriteBatch {
	return &WriteBatch{store: s}
}

func (s *GormStore) transact(ctx context.Context, fn func(tx *gorm.DB, now time.Time) error) error {
	now := s.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, now)
	})
	if err != nil && isUniqueConstraintError(err) {
		// A concurrent writer created the document between our read and insert; the
		// retry observes the row and merges onto it.
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(tx, now)
		})
	}
	return err
}

type opKind int

const (
	opSet opKind = iota
	opUpdate
	opDelete
)

type writeOp struct {
	kind       opKind
	collection string
	id         string
	data       map[string]any
	options    setOptions
}

func newSetOp(collection, id string, data map[string]any, opts []SetOption) (writeOp, error) {
	collection, id, err := cleanPath(collection, id)
	if err != nil {
		return writeOp{}, err
	}
	op := writeOp{kind: opSet, collection: collection, id: id, data: data}
	for _, opt := range opts {
		opt(&op.options)
	}
	return op, nil
}

func newUpdateOp(collection, id string, fields map[string]any) (writeOp, error) {
	collection, id, err := cleanPath(collection, id)
	if err != nil {
		return writeOp{}, err
	}
	if len(fields) == 0 {
		return writeOp{}, ErrEmptyUpdate
	}
	return writeOp{kind: opUpdate, collection: collection, id: id, data: fields}, nil
}

func applySet(tx *gorm.DB, op writeOp, now time.Time) error {
	data, err := normalizeDocument(op.data, now)
	if err != nil {
		return err
	}
	insertOnly, err := normalizeDocument(op.options.insertOnly, now)
	if err != nil {
		return err
	}

	row, err := findRow(tx, op.collection, op.id, true)
	if err != nil {
		return err
	}

	if row == nil {
		for key, value := range insertOnly {
			if _, exists := data[key]; !exists {
				data[key] = value
			}
		}
		return tx.Create(&models.Document{
			Collection: op.collection,
			DocID:      op.id,
			Data:       datatypes.JSONMap(data),
			CreatedAt:  now,
			UpdatedAt:  now,
		}).Error
	}

	next := data
	if op.options.merge {
		next = mergeInto(map[string]any(row.Data), data)
	}
	for key, value := range insertOnly {
		if _, exists := next[key]; !exists {
			next[key] = value
		}
	}
	return saveData(tx, row, next, now)
}

func applyUpdate(tx *gorm.DB, op writeOp, now time.Time) error {
	fields, err := normalizeDocument(op.data, now)
	if err != nil {
		return err
	}
	row, err := findRow(tx, op.collection, op.id, true)
	if err != nil {
		return err
	}
	if row == nil {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, op.collection, op.id)
	}
	next := map[string]any(row.Data)
	if next == nil {
		next = map[string]any{}
	}
	for path, value := range fields {
		setPath(next, path, value)
	}
	return saveData(tx, row, next, now)
}

func applyDelete(tx *gorm.DB, op writeOp) error {
	return tx.Where("collection = ? AND doc_id = ?", op.collection, op.id).
		Delete(&models.Document{}).Error
}

func saveData(tx *gorm.DB, row *models.Document, data map[string]any, now time.Time) error {
	return tx.Model(&models.Document{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"data":       datatypes.JSONMap(data),
			"updated_at": now,
		}).Error
}

func findRow(tx *gorm.DB, collection, id string, lock bool) (*models.Document, error) {
	query := tx.Where("collection = ? AND doc_id = ?", collection, id)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row models.Document
	err := query.Limit(1).Find(&row).Error
	if err != nil {
		return nil, fmt.Errorf("docstore: load %s/%s: %w", collection, id, err)
	}
	if row.ID == "" {
		return nil, nil
	}
	return &row, nil
}

func toSnapshot(row *models.Document) *Snapshot {
	data := map[string]any(row.Data)
	if data == nil {
		data = map[string]any{}
	}
	return &Snapshot{
		Collection: row.Collection,
		ID:         row.DocID,
		Data:       data,
		CreateTime: row.CreatedAt.UTC(),
		UpdateTime: row.UpdatedAt.UTC(),
	}
}

func cleanPath(collection, id string) (string, string, error) {
	collection = strings.Trim(strings.TrimSpace(collection), "/")
	id = strings.TrimSpace(id)
	if collection == "" || id == "" || strings.Contains(id, "/") {
		return "", "", ErrInvalidPath
	}
	return collection, id, nil
}
