// Package validation checks identifiers that arrive from clients before they
// reach object keys or the catalog.
package validation

import (
	"fmt"
	"path"
	"strings"
	"unicode"
)

// NameRules defines what a name may contain.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
	AllowSpaces  bool
}

// CubeIDRules returns the rules for cube identifiers. An id becomes an object
// key prefix, so separators and dots are never allowed.
func CubeIDRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    128,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// FilenameRules returns the rules for uploaded file names.
func FilenameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    255,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
		AllowSpaces:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be '.' or '..'")
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("name cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	case ' ':
		return rules.AllowSpaces
	}
	return false
}

// ValidateCubeID validates a cube identifier.
func ValidateCubeID(id string) error {
	return ValidateName(id, CubeIDRules())
}

// UploadName reduces a client-supplied file name to its base name and
// validates it. Browsers on Windows may send a full path with backslashes.
func UploadName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = path.Clean(name)
	if err := ValidateName(name, FilenameRules()); err != nil {
		return "", err
	}
	return name, nil
}
