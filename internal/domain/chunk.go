package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Vector is an embedding stored as a JSON array.
type Vector []float32

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the vector.
//   - error: non-nil if marshaling fails.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]float32(v))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (v *Vector) Scan(value interface{}) error {
	if value == nil {
		*v = Vector{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan Vector")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, (*[]float32)(v))
}

// Chunk is a contiguous slice of a document's extracted text together with its embedding.
// Chunks are written once, in the same transaction that completes their document.
type Chunk struct {
	ID            string    `gorm:"type:text;primaryKey" json:"id"`
	DocumentID    string    `gorm:"type:text;not null;uniqueIndex:idx_chunks_document_seq" json:"document_id"`
	SequenceIndex int       `gorm:"not null;uniqueIndex:idx_chunks_document_seq" json:"sequence_index"`
	Text          string    `gorm:"type:text;not null" json:"text"`
	Vector        Vector    `gorm:"type:text" json:"-"`
	StartOffset   int       `json:"start_offset"`
	EndOffset     int       `json:"end_offset"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName returns the database table name for Chunk.
func (Chunk) TableName() string {
	return "chunks"
}
