package distro

import (
	"fmt"
	"os"
	"path/filepath"
)

// OsLinux, OsBsd and OsWindows are the operating system families a Distro can describe.
const (
	OsLinux   = "linux"
	OsBsd     = "bsd"
	OsWindows = "windows"
)

// Distro describes the operating system of a root filesystem. The fields
// mirror the freedesktop os-release schema:
// https://www.freedesktop.org/software/systemd/man/os-release.html
type Distro struct {
	Os               string            `json:"os,omitempty" mapstructure:"os"`
	Architecture     string            `json:"architecture,omitempty" mapstructure:"architecture"`
	Name             string            `json:"name,omitempty" mapstructure:"name"`
	Version          string            `json:"version,omitempty" mapstructure:"version"`
	Identifier       string            `json:"identifier,omitempty" mapstructure:"identifier"`
	IDLike           []string          `json:"id_like,omitempty" mapstructure:"id_like"`
	VersionCodename  string            `json:"version_codename,omitempty" mapstructure:"version_codename"`
	VersionID        string            `json:"version_id,omitempty" mapstructure:"version_id"`
	PrettyName       string            `json:"pretty_name,omitempty" mapstructure:"pretty_name"`
	CpeName          string            `json:"cpe_name,omitempty" mapstructure:"cpe_name"`
	HomeURL          string            `json:"home_url,omitempty" mapstructure:"home_url"`
	DocumentationURL string            `json:"documentation_url,omitempty" mapstructure:"documentation_url"`
	SupportURL       string            `json:"support_url,omitempty" mapstructure:"support_url"`
	BugReportURL     string            `json:"bug_report_url,omitempty" mapstructure:"bug_report_url"`
	PrivacyPolicyURL string            `json:"privacy_policy_url,omitempty" mapstructure:"privacy_policy_url"`
	BuildID          string            `json:"build_id,omitempty" mapstructure:"build_id"`
	Variant          string            `json:"variant,omitempty" mapstructure:"variant"`
	VariantID        string            `json:"variant_id,omitempty" mapstructure:"variant_id"`
	Logo             string            `json:"logo,omitempty" mapstructure:"logo"`
	ExtraData        map[string]string `json:"extra_data,omitempty" mapstructure:"extra_data"`
}

// OsMismatchError is returned when the OS detected in a rootfs differs from
// the OS of the provided base distro.
type OsMismatchError struct {
	BaseOs  string
	FoundOs string
}

func (e *OsMismatchError) Error() string {
	return fmt.Sprintf("inconsistent base distro OS: %s and found distro OS: %s", e.BaseOs, e.FoundOs)
}

// IsDebianBased returns true when the distro is Debian or one of its derivatives.
func (d *Distro) IsDebianBased() bool {
	if d.Identifier == "debian" || d.Identifier == "ubuntu" {
		return true
	}
	for _, like := range d.IDLike {
		if like == "debian" {
			return true
		}
	}
	return false
}

// Merge returns a new Distro based on this distro's data updated with the
// non-empty values of other.
func (d *Distro) Merge(other *Distro) *Distro {
	merged := *d
	if other == nil {
		return &merged
	}
	mergeString(&merged.Os, other.Os)
	mergeString(&merged.Architecture, other.Architecture)
	mergeString(&merged.Name, other.Name)
	mergeString(&merged.Version, other.Version)
	mergeString(&merged.Identifier, other.Identifier)
	if len(other.IDLike) > 0 {
		merged.IDLike = other.IDLike
	}
	mergeString(&merged.VersionCodename, other.VersionCodename)
	mergeString(&merged.VersionID, other.VersionID)
	mergeString(&merged.PrettyName, other.PrettyName)
	mergeString(&merged.CpeName, other.CpeName)
	mergeString(&merged.HomeURL, other.HomeURL)
	mergeString(&merged.DocumentationURL, other.DocumentationURL)
	mergeString(&merged.SupportURL, other.SupportURL)
	mergeString(&merged.BugReportURL, other.BugReportURL)
	mergeString(&merged.PrivacyPolicyURL, other.PrivacyPolicyURL)
	mergeString(&merged.BuildID, other.BuildID)
	mergeString(&merged.Variant, other.Variant)
	mergeString(&merged.VariantID, other.VariantID)
	mergeString(&merged.Logo, other.Logo)
	if len(other.ExtraData) > 0 {
		merged.ExtraData = other.ExtraData
	}
	return &merged
}

func mergeString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

// FromRootfs discovers the Distro of the root filesystem at location. Returns
// nil when no OS could be detected or when the location is empty or missing.
//
// When baseDistro is provided, its OS has to agree with the detected OS
// (otherwise an OsMismatchError is returned) and its attributes fill in
// whatever the detection left empty.
func FromRootfs(location string, baseDistro *Distro) (*Distro, error) {
	if location == "" {
		return nil, nil
	}
	if _, err := os.Stat(location); err != nil {
		return nil, nil
	}

	finders := []struct {
		os     string
		finder func(string) (*Distro, error)
	}{
		{OsLinux, findLinuxDetails},
		{OsWindows, findWindowsDetails},
		{"freebsd", findFreebsdDetails},
	}

	for _, entry := range finders {
		found, err := entry.finder(location)
		if err != nil {
			return nil, err
		}
		if found == nil {
			continue
		}
		if baseDistro != nil {
			if baseDistro.Os != entry.os {
				return nil, &OsMismatchError{BaseOs: baseDistro.Os, FoundOs: found.Os}
			}
			return baseDistro.Merge(found), nil
		}
		return found, nil
	}

	return nil, nil
}

// findLinuxDetails looks for an os-release file in the usual locations.
// /etc/os-release has precedence over /usr/lib/os-release.
func findLinuxDetails(location string) (*Distro, error) {
	for _, candidate := range []string{"etc/os-release", "usr/lib/os-release"} {
		osRelease := filepath.Join(location, filepath.FromSlash(candidate))
		if _, err := os.Stat(osRelease); err == nil {
			return FromOsReleaseFile(osRelease)
		}
	}
	return nil, nil
}

// findWindowsDetails probes for the well known top-level Windows directories.
func findWindowsDetails(location string) (*Distro, error) {
	root, err := FindRoot(location, 3, WindowsPaths, 2, nil)
	if err != nil {
		return nil, err
	}
	if root != "" {
		return &Distro{Os: OsWindows, Identifier: "windows"}, nil
	}
	return nil, nil
}

func findFreebsdDetails(location string) (*Distro, error) {
	// not implemented yet
	return nil, nil
}
