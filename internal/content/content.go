package content

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

const (
	MinRoomLength     = 2
	MaxRoomLength     = 30
	MaxMessageLength  = 5000
	MaxNameLength     = 100
	MinPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	MaxPasswordLength = 72
)

var (
	ErrMessageEmpty    = errors.New("message cannot be empty")
	ErrRoomLength      = fmt.Errorf("room name must be between %d and %d characters", MinRoomLength, MaxRoomLength)
	ErrNameTooShort    = errors.New("name must be at least 2 characters")
	ErrPasswordLength  = fmt.Errorf("password must be between %d and %d characters", MinPasswordLength, MaxPasswordLength)
	ErrCorporateEmail  = errors.New("a corporate e-mail address is required")
	ErrInvalidUsername = errors.New("github username contains invalid characters (allowed: alphanumeric, dash)")
	ErrInvalidURL      = errors.New("a valid http(s) repository URL is required")
)

var (
	policy      = bluemonday.UGCPolicy()
	githubRegex = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
)

// Sanitize removes unsafe HTML from the input string.
// It is used for anything that is served back as HTML.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// RenderMarkdown converts a markdown document into sanitized HTML.
func RenderMarkdown(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return Sanitize(buf.String()), nil
}

// Clean removes control characters (except tab and newline) and invalid
// runes, limits the result to maxRunes runes and trims surrounding space.
func Clean(s string, maxRunes int) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range s {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			continue
		}
		if r == utf8.RuneError {
			continue
		}
		if maxRunes > 0 && n >= maxRunes {
			break
		}
		b.WriteRune(r)
		n++
	}

	return strings.TrimSpace(b.String())
}

// NormalizeRoom trims and lower-cases a room name.
func NormalizeRoom(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateRoom checks the length of an already normalized room name.
func ValidateRoom(name string) error {
	n := utf8.RuneCountInString(name)
	if n < MinRoomLength || n > MaxRoomLength {
		return ErrRoomLength
	}
	return nil
}

// ValidateMessage checks that a message has visible content.
func ValidateMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrMessageEmpty
	}
	return nil
}

// ValidateEmail requires the address to belong to the corporate domain.
func ValidateEmail(email, domain string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return ErrCorporateEmail
	}
	if domain != "" && email[at+1:] != strings.ToLower(domain) {
		return ErrCorporateEmail
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return ErrPasswordLength
	}
	return nil
}

func ValidateName(name string) error {
	if utf8.RuneCountInString(strings.TrimSpace(name)) < 2 {
		return ErrNameTooShort
	}
	return nil
}

// ValidateGitHub checks an optional GitHub username.
func ValidateGitHub(username string) error {
	if username == "" {
		return nil
	}
	if !githubRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// ValidateRepoURL requires an absolute http or https URL.
func ValidateRepoURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidURL
	}
	return nil
}
