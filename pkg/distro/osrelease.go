package distro

import (
	"bufio"
	"os"
	"strings"

	"github.com/google/shlex"
	"github.com/pkg/errors"
)

// FromOsReleaseFile returns a Distro built from a Linux os-release file.
// Returns nil when location is empty or missing.
func FromOsReleaseFile(location string) (*Distro, error) {
	if location == "" {
		return nil, nil
	}
	if _, err := os.Stat(location); err != nil {
		return nil, nil
	}

	data, err := ParseOsRelease(location)
	if err != nil {
		return nil, err
	}

	distro := &Distro{
		Os:               popOrDefault(data, "OS", OsLinux),
		Name:             popOrDefault(data, "NAME", "linux"),
		Identifier:       popOrDefault(data, "ID", "linux"),
		Architecture:     pop(data, "ARCHITECTURE"),
		Version:          pop(data, "VERSION"),
		VersionCodename:  pop(data, "VERSION_CODENAME"),
		VersionID:        pop(data, "VERSION_ID"),
		PrettyName:       pop(data, "PRETTY_NAME"),
		CpeName:          pop(data, "CPE_NAME"),
		HomeURL:          pop(data, "HOME_URL"),
		DocumentationURL: pop(data, "DOCUMENTATION_URL"),
		SupportURL:       pop(data, "SUPPORT_URL"),
		BugReportURL:     pop(data, "BUG_REPORT_URL"),
		PrivacyPolicyURL: pop(data, "PRIVACY_POLICY_URL"),
		BuildID:          pop(data, "BUILD_ID"),
		Variant:          pop(data, "VARIANT"),
		VariantID:        pop(data, "VARIANT_ID"),
		Logo:             pop(data, "LOGO"),
	}

	if idLike := pop(data, "ID_LIKE"); idLike != "" {
		distro.IDLike = strings.Fields(idLike)
	}

	// not useful for identification
	pop(data, "ANSI_COLOR")

	// everything left is unknown, extra data
	if len(data) > 0 {
		distro.ExtraData = data
	}

	return distro, nil
}

// ParseOsRelease returns the key/value mapping parsed from an os-release-like
// file at location. Blank lines and comment lines are ignored; values are
// dequoted with POSIX shell word splitting semantics, so
// NAME="Debian GNU/Linux" parses to the value `Debian GNU/Linux`.
func ParseOsRelease(location string) (map[string]string, error) {
	f, err := os.Open(location)
	if err != nil {
		return nil, errors.Wrapf(err, "failed opening os-release file: %s", location)
	}
	defer f.Close()

	parsed := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := partition(line, "=")
		if !found {
			continue
		}
		words, err := shlex.Split(value)
		if err != nil {
			return nil, errors.Wrapf(err, "failed dequoting os-release value in: %s", location)
		}
		parsed[strings.TrimSpace(key)] = strings.Join(words, "")
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed reading os-release file: %s", location)
	}
	return parsed, nil
}

func partition(input, separator string) (string, string, bool) {
	idx := strings.Index(input, separator)
	if idx < 0 {
		return input, "", false
	}
	return input[:idx], input[idx+len(separator):], true
}

func pop(data map[string]string, key string) string {
	value := data[key]
	delete(data, key)
	return value
}

func popOrDefault(data map[string]string, key, fallback string) string {
	value := pop(data, key)
	if value == "" {
		return fallback
	}
	return value
}
