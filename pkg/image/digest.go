package image

import (
	"regexp"
	"strings"

	godigest "github.com/opencontainers/go-digest"
)

var sha256IDRegexp = regexp.MustCompile("^[a-f0-9]{64}$")

// AsBareID returns the id stripped from its leading checksum algorithm prefix,
// when present.
func AsBareID(input string) string {
	if strings.HasPrefix(input, "sha256:") {
		return strings.TrimPrefix(input, "sha256:")
	}
	return input
}

// AsPrefixedDigest returns the canonical sha256-prefixed form of a bare or
// already prefixed id.
func AsPrefixedDigest(input string) string {
	if input == "" {
		return ""
	}
	if strings.Contains(input, ":") {
		return input
	}
	return godigest.NewDigestFromEncoded(godigest.SHA256, input).String()
}

// IsImageOrLayerID returns true when the string looks like a bare SHA256 id.
func IsImageOrLayerID(input string) bool {
	return sha256IDRegexp.MatchString(input)
}
