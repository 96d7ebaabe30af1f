// Package bounded provides fixed-capacity containers that evict by a declared
// policy instead of growing. Inserting into a full container evicts exactly one
// resident element; overflow is never reported as an error.
package bounded

import "errors"

var ErrInvalidCapacity = errors.New("bounded: capacity must be > 0")

func checkCapacity(capacity int) error {
	if capacity <= 0 {
		return ErrInvalidCapacity
	}
	return nil
}
