// SPDX-License-Identifier: Apache-2.0
package resilience

import "context"

// FallbackFunc produces a substitute value when the primary operation fails.
type FallbackFunc[T any] func(ctx context.Context, primaryErr error) (T, error)

// Static returns a fallback that always yields value.
func Static[T any](value T) FallbackFunc[T] {
	return func(context.Context, error) (T, error) {
		return value, nil
	}
}

// WithFallback executes fn and, on error, delegates to fallback.
func WithFallback[T any](ctx context.Context, fn func(context.Context) (T, error), fallback FallbackFunc[T]) (T, error) {
	value, err := fn(ctx)
	if err == nil || fallback == nil {
		return value, err
	}
	return fallback(ctx, err)
}
