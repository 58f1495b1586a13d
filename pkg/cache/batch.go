package cache

import (
	"context"
	"errors"
	"sync"
)

// BatchDeleter is implemented by layers that can drop several keys in one
// round trip (Redis DEL, SQL DELETE ... IN).
type BatchDeleter interface {
	DeleteMulti(ctx context.Context, keys []string) error
}

// DeleteMany removes keys from layer, using DeleteMulti when the layer has it
// and falling back to parallel single deletes otherwise. Every key is attempted
// and all failures are joined.
func DeleteMany(ctx context.Context, layer Layer, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	if bd, ok := layer.(BatchDeleter); ok {
		return bd.DeleteMulti(ctx, keys)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, key := range keys {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()

			if err := ctx.Err(); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}

			if err := layer.Delete(ctx, k); err != nil {
				mu.Lock()
				errs = append(errs, WrapError(err, layer.Name(), "delete "+k))
				mu.Unlock()
			}
		}(key)
	}

	wg.Wait()

	return errors.Join(errs...)
}
