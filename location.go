package descriptor

import (
	"fmt"
	"maps"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// URIPrefix starts every location URI.
const URIPrefix = "bundle:"

// Location addresses a bundle. The "type" key selects the backend; the
// remaining keys are backend specific, for example:
//
//	{"type": "path", "path": "/studio/apps/tk-multi-publish"}
//	{"type": "uploaded_attachment", "name": "primary", "project_id": 12, "attachment_id": 456}
//	{"type": "git", "path": "git@github.com:studio/tk-foo.git", "version": "v1.2.3"}
//
// Values are scalars. Two locations address the same bundle when their
// Canonical forms are equal.
type Location map[string]any

// Type returns the backend discriminator.
func (l Location) Type() string {
	return stringValue(l, "type")
}

// Canonical returns a stable serialization with sorted keys, suitable as
// a map key: "<type>?k1=v1&k2=v2". Nil values are treated as absent.
func (l Location) Canonical() string {
	vals := url.Values{}
	for k, v := range l {
		if k == "type" || v == nil {
			continue
		}
		vals.Set(k, formatValue(v))
	}
	typ := url.PathEscape(l.Type())
	if q := vals.Encode(); q != "" {
		return typ + "?" + q
	}
	return typ
}

// URI returns the location as a single string, e.g.
// "bundle:path?name=my-app&path=%2Ftmp%2Ffoo".
func (l Location) URI() string {
	return URIPrefix + l.Canonical()
}

func (l Location) String() string {
	return l.URI()
}

// Clone returns a shallow copy.
func (l Location) Clone() Location {
	return maps.Clone(l)
}

// ParseURI converts a URI produced by Location.URI back into a Location.
// All values other than the type come back as strings.
func ParseURI(uri string) (Location, error) {
	rest, ok := strings.CutPrefix(uri, URIPrefix)
	if !ok {
		return nil, &ErrInvalidLocation{URI: uri, Reason: fmt.Sprintf("must begin with %q", URIPrefix)}
	}

	rawType, query, _ := strings.Cut(rest, "?")
	typ, err := url.PathUnescape(rawType)
	if err != nil || typ == "" {
		return nil, &ErrInvalidLocation{URI: uri, Reason: "missing descriptor type"}
	}

	vals, err := url.ParseQuery(query)
	if err != nil {
		return nil, &ErrInvalidLocation{URI: uri, Reason: err.Error()}
	}

	loc := Location{"type": typ}
	for k, vs := range vals {
		if len(vs) == 0 || vs[len(vs)-1] == "" {
			continue
		}
		loc[k] = vs[len(vs)-1]
	}
	return loc, nil
}

// ParsePairs builds a Location from "key=value" arguments.
func ParsePairs(pairs []string) (Location, error) {
	loc := Location{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		loc[k] = v
	}
	if loc.Type() == "" {
		return nil, &ErrInvalidLocation{Location: loc, Reason: "missing required keys type"}
	}
	return loc, nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

func stringValue(l Location, key string) string {
	v, ok := l[key]
	if !ok || v == nil {
		return ""
	}
	return formatValue(v)
}

// validateKeys fails if required keys are missing or nil and warns about
// keys that are neither required nor optional.
func validateKeys(loc Location, required, optional []string, logger hclog.Logger) error {
	var missing []string
	for _, k := range required {
		if v, ok := loc[k]; !ok || v == nil {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &ErrInvalidLocation{
			Location: loc,
			Reason:   "missing required keys " + strings.Join(missing, ", "),
		}
	}

	var unknown []string
	for k := range loc {
		if !slices.Contains(required, k) && !slices.Contains(optional, k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		logger.Warn("found unsupported location keys, these will be ignored", "keys", unknown, "location", loc.String())
	}
	return nil
}

var invalidFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// validFilename replaces characters that are unsafe in a path segment.
func validFilename(s string) string {
	return invalidFilenameChars.ReplaceAllString(s, "_")
}
