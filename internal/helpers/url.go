package helpers

import (
	"errors"
	"net/url"
	"sort"
	"strings"
)

// Tracking parameters are dropped when computing a link's identity so the
// same article reached through different campaigns dedups to one entry.
var trackingQueryParams = map[string]struct{}{
	"gclid":  {},
	"dclid":  {},
	"fbclid": {},
	"igshid": {},
	"mc_cid": {},
	"mc_eid": {},
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if strings.HasPrefix(lower, "utm_") {
		return true
	}
	_, ok := trackingQueryParams[lower]
	return ok
}

// NormalizeLink reduces a URL to the identity key used for result
// deduplication: lowercased scheme and host, no fragment, no tracking query
// parameters, remaining query keys sorted deterministically. A schemeless
// input is treated as https.
func NormalizeLink(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}

	parsed, err := parseLenient(raw)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	if parsed.Host == "" {
		return "", errors.New("url missing host")
	}
	parsed.Fragment = ""
	parsed.RawFragment = ""

	query := parsed.Query()
	for key := range query {
		if isTrackingParam(key) {
			query.Del(key)
		}
	}
	if len(query) == 0 {
		parsed.RawQuery = ""
	} else {
		keys := make([]string, 0, len(query))
		for key := range query {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, key := range keys {
			values := append([]string(nil), query[key]...)
			sort.Strings(values)
			for _, value := range values {
				if b.Len() > 0 {
					b.WriteByte('&')
				}
				b.WriteString(url.QueryEscape(key))
				if value != "" {
					b.WriteByte('=')
					b.WriteString(url.QueryEscape(value))
				}
			}
		}
		parsed.RawQuery = b.String()
	}

	return parsed.String(), nil
}

// LinkKey is NormalizeLink lowered to a case-insensitive comparison key.
// It never fails: unparseable input falls back to the lowercased raw string.
func LinkKey(raw string) string {
	normalized, err := NormalizeLink(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return strings.ToLower(normalized)
}

// Host returns the bare hostname of a URL for source attribution, with any
// leading "www." removed. Unparseable input yields an empty string.
func Host(raw string) string {
	parsed, err := parseLenient(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// parseLenient parses raw into a url.URL, tolerating schemeless input such
// as "example.com/path" or "//example.com/path".
func parseLenient(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" && parsed.Host == "" {
		if strings.HasPrefix(raw, "//") {
			return url.Parse("https:" + raw)
		}
		return url.Parse("https://" + raw)
	}
	return parsed, nil
}
