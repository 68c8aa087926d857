package icon

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	clierr "github.com/geometry-infra/preptools/internal/errors"
)

const apiPath = "/api/v3"

// Named endpoints accepted in place of a URL.
var networkURLs = map[string]string{
	"mainnet": "https://ctz.solidwallet.io/api/v3",
	"testnet": "https://test-ctz.solidwallet.io/api/v3",
	"bicon":   "https://bicon.net.solidwallet.io/api/v3",
	"zicon":   "https://zicon.net.solidwallet.io/api/v3",
	"local":   "http://127.0.0.1:9000/api/v3",
}

// NetworkAliases lists the accepted endpoint shortcuts.
func NetworkAliases() []string {
	out := make([]string, 0, len(networkURLs))
	for k := range networkURLs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ResolveURL expands a network alias or validates an explicit endpoint.
// An endpoint given without a path gets /api/v3 appended.
func ResolveURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return "", clierr.New(clierr.CodeUsage, "node url is required")
	}
	if v, ok := networkURLs[strings.ToLower(clean)]; ok {
		return v, nil
	}
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUsage, "parse node url", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported node url %q (expected http(s) url or one of %s)", raw, strings.Join(NetworkAliases(), ", ")))
	}
	if parsed.Host == "" {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("node url %q has no host", raw))
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = apiPath
	}
	return parsed.String(), nil
}
