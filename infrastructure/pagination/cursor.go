// Package pagination issues and resolves opaque page cursors bound to the
// parameters of the request that produced them.
package pagination

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/influx-mcp/domain/query"
)

const hashLength = 16

// Cursor is the decoded form of a page token.
type Cursor struct {
	Database    string `json:"db"`
	Measurement string `json:"measurement"`
	Offset      int    `json:"offset"`
	TimeAnchor  string `json:"timeAnchor,omitempty"`
	Hash        string `json:"hash"`
}

// Hash digests params independently of key order: params are round-tripped
// through a generic JSON value, whose objects encode with sorted keys at
// every depth. The digest is sha256, hex, truncated to 16 characters.
func Hash(params any) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("hash params: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("hash params: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("hash params: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:hashLength], nil
}

// Issue encodes a cursor for the page starting at offset.
func Issue(db, measurement string, offset int, params any, timeAnchor string) (string, error) {
	h, err := Hash(params)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(Cursor{
		Database:    db,
		Measurement: measurement,
		Offset:      offset,
		TimeAnchor:  timeAnchor,
		Hash:        h,
	})
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Resolve decodes a token. It fails with INVALID_CURSOR when the token is
// not base64 JSON of a cursor.
func Resolve(token string) (Cursor, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, query.NewInvalidCursorError("invalid pagination cursor: " + err.Error())
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, query.NewInvalidCursorError("invalid pagination cursor: " + err.Error())
	}
	if c.Hash == "" || c.Offset < 0 {
		return Cursor{}, query.NewInvalidCursorError("invalid pagination cursor: missing hash or negative offset")
	}
	return c, nil
}

// Verify checks that c was issued for the same database, measurement and
// parameters as the current request.
func (c Cursor) Verify(db, measurement string, params any) error {
	if c.Database != db || c.Measurement != measurement {
		return query.NewInvalidCursorError("cursor was issued for a different measurement")
	}
	h, err := Hash(params)
	if err != nil {
		return err
	}
	if h != c.Hash {
		return query.NewInvalidCursorError("query parameters changed between pages")
	}
	return nil
}
