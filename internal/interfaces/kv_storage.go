package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned when a key is not found in the key/value store
var ErrKeyNotFound = errors.New("key not found")

// KeyValuePair holds small pieces of process state such as the live monitor
// snapshot and API keys set at runtime
type KeyValuePair struct {
	Key         string    `json:"key" gorm:"primaryKey;size:128"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName sets the SQL table name
func (KeyValuePair) TableName() string {
	return "key_values"
}

// KeyValueStorage is a case-insensitive string store
type KeyValueStorage interface {
	// Get returns ErrKeyNotFound when the key is absent
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, description string) error
	Delete(ctx context.Context, key string) error
	// List returns all pairs, most recently updated first
	List(ctx context.Context) ([]KeyValuePair, error)
}
