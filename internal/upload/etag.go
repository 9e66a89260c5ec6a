package upload

import "strings"

// VersionFromETag extracts the version from an ETag. A weak tag W/"v" yields
// v; any other non-empty tag is returned unchanged, quotes included.
func VersionFromETag(etag string) (string, bool) {
	if etag == "" {
		return "", false
	}
	if rest, ok := strings.CutPrefix(etag, `W/"`); ok {
		if v, ok := strings.CutSuffix(rest, `"`); ok && v != "" {
			return v, true
		}
	}
	return etag, true
}

// Location identifies a resource version from a response Location such as
// "https://host/fhir/Patient/123/_history/2".
type Location struct {
	Type    string
	ID      string
	Version string
}

// ParseLocation splits a Location URL into its type, id and version. It
// needs at least four path segments ending in Type/id/_history/version.
func ParseLocation(location string) (Location, bool) {
	segs := strings.Split(location, "/")
	n := len(segs)
	if n <= 3 {
		return Location{}, false
	}
	if segs[n-2] != "_history" {
		return Location{}, false
	}
	loc := Location{Type: segs[n-4], ID: segs[n-3], Version: segs[n-1]}
	if loc.Type == "" || loc.ID == "" {
		return Location{}, false
	}
	return loc, true
}
