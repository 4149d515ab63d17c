package cache

import (
	"encoding/base64"
	"strings"
)

// queryKeyLength is how much of the encoded request a query key keeps.
const queryKeyLength = 32

// MetadataKey builds "meta:<kind>[:<db>][:<measurement>]". Empty parts are
// skipped.
func MetadataKey(kind string, parts ...string) string {
	var b strings.Builder
	b.WriteString("meta:")
	b.WriteString(kind)
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}

// QueryKey builds "query:<db>:<first 32 chars of base64(serialized)>".
// The key is a fingerprint; callers that need exactness store the full
// request hash alongside the value.
func QueryKey(db string, serialized []byte) string {
	enc := base64.StdEncoding.EncodeToString(serialized)
	if len(enc) > queryKeyLength {
		enc = enc[:queryKeyLength]
	}
	return "query:" + db + ":" + enc
}
