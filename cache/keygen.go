package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// AuthParam is the query parameter carrying the API credential.
// It never takes part in a cache key.
const AuthParam = "apiKey"

// Params is a request query-parameter map. A nil value (or a nil pointer)
// means the parameter is unset.
type Params map[string]any

// Clone returns a shallow copy; a nil map clones to an empty one
func (p Params) Clone() Params {
	out := make(Params, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Without returns a copy with the named keys removed
func (p Params) Without(keys ...string) Params {
	out := p.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Values renders the set parameters as url.Values
func (p Params) Values() url.Values {
	v := url.Values{}
	for k, raw := range p {
		if s, ok := FormatValue(raw); ok {
			v.Set(k, s)
		}
	}
	return v
}

// GenerateKey builds a canonical cache key from a URL and its parameters.
// Unset values and the auth parameter are dropped, the rest are sorted by
// name. With nothing left the URL is returned unchanged.
func GenerateKey(rawURL string, params Params) string {
	parts := make([]string, 0, len(params))
	for k, raw := range params {
		if k == AuthParam {
			continue
		}
		s, ok := FormatValue(raw)
		if !ok {
			continue
		}
		parts = append(parts, k+"="+s)
	}
	if len(parts) == 0 {
		return rawURL
	}

	// order by key name, not by the joined pair
	sort.Slice(parts, func(i, j int) bool {
		return keyPart(parts[i]) < keyPart(parts[j])
	})

	return rawURL + "?" + strings.Join(parts, "&")
}

func keyPart(kv string) string {
	k, _, _ := strings.Cut(kv, "=")
	return k
}

// FormatValue renders a parameter value. It reports false for unset values.
func FormatValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case *string:
		if x == nil {
			return "", false
		}
		return *x, true
	case bool:
		return strconv.FormatBool(x), true
	case *bool:
		if x == nil {
			return "", false
		}
		return strconv.FormatBool(*x), true
	case int:
		return strconv.Itoa(x), true
	case *int:
		if x == nil {
			return "", false
		}
		return strconv.Itoa(*x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}
