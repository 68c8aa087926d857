package icon

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/sha3"
)

var escaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`{`, `\{`,
	`}`, `\}`,
	`[`, `\[`,
	`]`, `\]`,
)

// Serialize builds the signing pre-image of a transaction:
// "icx_sendTransaction." followed by the sorted key.value pairs of the
// params, nested objects in {} and arrays in []. signature and txHash are
// never part of the pre-image.
func Serialize(fields map[string]any) string {
	return MethodSendTransaction + "." + serializeObject(fields, true)
}

// TxHash is SHA3-256 of the serialized pre-image.
func TxHash(fields map[string]any) []byte {
	sum := sha3.Sum256([]byte(Serialize(fields)))
	return sum[:]
}

func serializeObject(m map[string]any, top bool) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if top && (k == "signature" || k == "txHash") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"."+serializeValue(m[k]))
	}
	return strings.Join(parts, ".")
}

func serializeValue(v any) string {
	switch t := v.(type) {
	case nil:
		return `\0`
	case map[string]any:
		return "{" + serializeObject(t, false) + "}"
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, s := range t {
			m[k] = s
		}
		return "{" + serializeObject(m, false) + "}"
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, serializeValue(item))
		}
		return "[" + strings.Join(parts, ".") + "]"
	case []string:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, escaper.Replace(item))
		}
		return "[" + strings.Join(parts, ".") + "]"
	case string:
		return escaper.Replace(t)
	default:
		return escaper.Replace(fmt.Sprint(t))
	}
}
