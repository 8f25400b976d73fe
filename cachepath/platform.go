package cachepath

import (
	"fmt"
	"path"
	"runtime"
	"strings"
)

// Platform identifies one of the supported operating systems.
type Platform int

const (
	Linux Platform = iota
	MacOS
	Windows
)

// CurrentPlatform returns the platform the process is running on.
// Anything that is neither darwin nor windows is treated as Linux.
func CurrentPlatform() Platform {
	switch runtime.GOOS {
	case "darwin":
		return MacOS
	case "windows":
		return Windows
	default:
		return Linux
	}
}

// ParsePlatform accepts both Go-style and sys.platform-style names.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linux", "linux2":
		return Linux, nil
	case "darwin", "mac", "macos", "osx":
		return MacOS, nil
	case "windows", "win32", "win":
		return Windows, nil
	}
	return 0, fmt.Errorf("unknown platform %q", s)
}

func (p Platform) String() string {
	switch p {
	case Linux:
		return "linux"
	case MacOS:
		return "darwin"
	case Windows:
		return "windows"
	}
	return fmt.Sprintf("platform(%d)", int(p))
}

// PathKey returns the location key holding a path for this platform.
func (p Platform) PathKey() string {
	switch p {
	case MacOS:
		return "mac_path"
	case Windows:
		return "windows_path"
	default:
		return "linux_path"
	}
}

// join builds a path using the separator of p rather than the host's,
// so roots for other platforms can be computed from any machine.
func (p Platform) join(elem ...string) string {
	if p != Windows {
		return strings.Join(trimSeparators(elem, "/"), "/")
	}
	return strings.Join(trimSeparators(elem, `\`), `\`)
}

func trimSeparators(elem []string, sep string) []string {
	out := make([]string, 0, len(elem))
	for i, e := range elem {
		if e == "" {
			continue
		}
		if i > 0 {
			e = strings.TrimLeft(e, sep)
		}
		if i < len(elem)-1 {
			e = strings.TrimRight(e, sep)
		}
		out = append(out, e)
	}
	return out
}

// Clean returns the shortest equivalent of p using the rules and separator
// of the platform. Windows paths keep their drive letter or UNC prefix and
// accept either slash as input.
func (p Platform) Clean(s string) string {
	if p != Windows {
		return path.Clean(s)
	}
	vol, rest := splitVolume(strings.ReplaceAll(s, `\`, "/"))
	if rest == "" {
		return strings.ReplaceAll(vol, "/", `\`)
	}
	return strings.ReplaceAll(vol+path.Clean(rest), "/", `\`)
}

// Base returns the last element of p, ignoring trailing separators.
func (p Platform) Base(s string) string {
	if p != Windows {
		return path.Base(s)
	}
	_, rest := splitVolume(strings.ReplaceAll(s, `\`, "/"))
	rest = strings.TrimRight(rest, "/")
	if rest == "" {
		return `\`
	}
	return path.Base(rest)
}

// splitVolume splits a forward-slashed Windows path into its volume, either
// "c:" or "//server/share", and the remainder.
func splitVolume(s string) (string, string) {
	if len(s) >= 2 && s[1] == ':' && isLetter(s[0]) {
		return s[:2], s[2:]
	}
	if strings.HasPrefix(s, "//") && !strings.HasPrefix(s, "///") {
		parts := strings.SplitN(s[2:], "/", 3)
		if len(parts) >= 2 && parts[0] != "" && parts[1] != "" {
			vol := "//" + parts[0] + "/" + parts[1]
			return vol, s[len(vol):]
		}
	}
	return "", s
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
