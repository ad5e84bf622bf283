package docstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// WriteBatch groups writes that are committed atomically in one transaction. A batch may
// hold at most MaxBatchOps operations; callers with more work must split it.
type WriteBatch struct {
	store *GormStore
	ops   []writeOp
	err   error
}

// Set queues a Set operation.
func (b *WriteBatch) Set(collection, id string, data map[string]any, opts ...SetOption) *WriteBatch {
	op, err := newSetOp(collection, id, data, opts)
	return b.add(op, err)
}

// Update queues an Update operation; the whole batch fails if the document is missing.
func (b *WriteBatch) Update(collection, id string, fields map[string]any) *WriteBatch {
	op, err := newUpdateOp(collection, id, fields)
	return b.add(op, err)
}

// Delete queues a Delete operation.
func (b *WriteBatch) Delete(collection, id string) *WriteBatch {
	collection, id, err := cleanPath(collection, id)
	return b.add(writeOp{kind: opDelete, collection: collection, id: id}, err)
}

// Len reports the number of queued operations.
func (b *WriteBatch) Len() int {
	return len(b.ops)
}

// Commit applies every queued operation in one transaction.
func (b *WriteBatch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	if len(b.ops) > MaxBatchOps {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(b.ops), MaxBatchOps)
	}
	if len(b.ops) == 0 {
		return nil
	}
	return b.store.transact(ctx, func(tx *gorm.DB, now time.Time) error {
		for _, op := range b.ops {
			var err error
			switch op.kind {
			case opSet:
				err = applySet(tx, op, now)
			case opUpdate:
				err = applyUpdate(tx, op, now)
			case opDelete:
				err = applyDelete(tx, op)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *WriteBatch) add(op writeOp, err error) *WriteBatch {
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	b.ops = append(b.ops, op)
	return b
}
