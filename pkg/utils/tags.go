package utils

import "regexp"

const regexpString = "^(?:([a-z0-9\\-_.]{1,60})/)?([a-z0-9\\-_.]{1,60}):([a-zA-Z0-9\\-_.]{1,60})$"

var tagRegexp = regexp.MustCompile(regexpString)

// IsValidTag checks if the given image tag is a valid [org/]name:version reference.
func IsValidTag(input string) bool {
	return tagRegexp.Match([]byte(input))
}

// TagDecompose decomposes the tag into the org, name and version components.
// The org component is empty for single-level references.
func TagDecompose(input string) (bool, string, string, string) {
	parts := tagRegexp.FindSubmatch([]byte(input))
	if len(parts) == 4 { // must be 4:
		return true, string(parts[1]), string(parts[2]), string(parts[3])
	}
	return false, "", "", ""
}
