package l402

import (
	"fmt"
	"strings"
)

const (
	// HeaderAuthorization is the HTTP header field name the client sends
	// its credentials in.
	HeaderAuthorization = "Authorization"

	// HeaderWWWAuthenticate is the HTTP header field name the challenge
	// is sent in.
	HeaderWWWAuthenticate = "WWW-Authenticate"

	// authScheme is the authentication scheme token. It is matched
	// case-insensitively, the rest of the header value is case-sensitive.
	authScheme = "L402"
)

// FormatAuthorization renders the Authorization header value for the given
// serialized macaroon and hex encoded preimage.
func FormatAuthorization(macaroon, preimage string) string {
	return fmt.Sprintf("%s %s:%s", authScheme, macaroon, preimage)
}

// MatchesScheme reports whether the header value announces the L402 scheme.
// Headers carrying a different scheme are not credentials for this protocol
// and are treated as absent rather than malformed.
func MatchesScheme(value string) bool {
	return len(value) > len(authScheme) &&
		strings.EqualFold(value[:len(authScheme)], authScheme) &&
		value[len(authScheme)] == ' '
}

// ParseAuthorization extracts the serialized macaroon and the hex encoded
// preimage from an Authorization header value of the form
// "L402 <macaroon>:<preimage>". The scheme token is matched
// case-insensitively, the separator is exactly one space and the payload is
// split on the first colon. Both halves must be non-empty. The parser is
// deliberately strict, accepting loose formats risks a downgrade to unbound
// credentials.
func ParseAuthorization(value string) (string, string, error) {
	prefixLen := len(authScheme) + 1
	if len(value) <= prefixLen ||
		!strings.EqualFold(value[:len(authScheme)], authScheme) ||
		value[len(authScheme)] != ' ' {

		return "", "", fmt.Errorf("invalid auth header format: %q",
			value)
	}

	macaroon, preimage, found := strings.Cut(value[prefixLen:], ":")
	if !found || macaroon == "" || preimage == "" {
		return "", "", fmt.Errorf("invalid auth header format: %q",
			value)
	}

	return macaroon, preimage, nil
}
