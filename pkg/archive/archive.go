package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// extractedMode is forced on every extracted entry. Ownership, timestamps
// and extended attributes are never preserved.
const extractedMode = os.FileMode(0755)

// ExtractTar extracts the tar archive at location into targetDir and returns the
// ordered list of per-entry events. The extraction is safe with respect to the
// archive content:
//
//   - character devices, block devices, FIFOs and sparse files are skipped,
//   - entries with a ".." path segment are skipped,
//   - absolute entry names are made relative to targetDir,
//   - hardlinks and symlinks are skipped when skipSymlinks is set, and links
//     with a missing target are always skipped,
//   - per-entry extraction errors are reported as events and do not stop the
//     remaining entries.
//
// Only a non-extractable archive is a hard error.
func ExtractTar(location, targetDir string, skipSymlinks bool, logger hclog.Logger) ([]Event, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	events := []Event{}

	f, err := os.Open(location)
	if err != nil {
		return events, errors.Wrapf(err, "failed opening archive: %s", location)
	}
	defer f.Close()

	if err := os.MkdirAll(targetDir, extractedMode); err != nil {
		return events, errors.Wrapf(err, "failed creating target directory: %s", targetDir)
	}

	tarReader, err := newTarReader(f)
	if err != nil {
		return events, errors.Wrapf(err, "failed reading archive: %s", location)
	}

	for {
		header, nextErr := tarReader.Next()
		if nextErr == io.EOF {
			break
		}
		if nextErr != nil {
			return events, errors.Wrapf(nextErr, "failed reading archive entry: %s", location)
		}

		name := header.Name

		switch header.Typeflag {
		case tar.TypeChar, tar.TypeBlock, tar.TypeFifo, tar.TypeGNUSparse:
			events = append(events, Event{
				Type:    EventInfo,
				Source:  name,
				Message: "skipping special file",
			})
			logger.Debug("skipping special file", "entry", name)
			continue
		}

		if hasDotDotSegment(name) || (header.Typeflag == tar.TypeLink && hasDotDotSegment(header.Linkname)) {
			events = append(events, Event{
				Type:    EventWarning,
				Source:  name,
				Message: "skipping entry with a relative path segment",
			})
			logger.Warn("skipping entry with a relative path segment", "entry", name)
			continue
		}

		if strings.HasPrefix(name, "/") {
			events = append(events, Event{
				Type:    EventWarning,
				Source:  name,
				Message: "transforming an absolute path to a relative path",
			})
			logger.Warn("transforming an absolute path to a relative path", "entry", name)
			name = strings.TrimLeft(name, "/")
		}
		name = strings.TrimPrefix(name, "./")
		if name == "" {
			continue
		}

		target := filepath.Join(targetDir, filepath.FromSlash(name))

		var entryErr error
		switch header.Typeflag {
		case tar.TypeDir:
			entryErr = os.MkdirAll(target, extractedMode)
		case tar.TypeSymlink, tar.TypeLink:
			if skipSymlinks {
				events = append(events, Event{
					Type:    EventInfo,
					Source:  name,
					Message: "skipping link",
				})
				logger.Debug("skipping link", "entry", name, "link-target", header.Linkname)
				continue
			}
			broken, linkErr := extractLink(header, name, target, targetDir)
			if broken {
				events = append(events, Event{
					Type:    EventWarning,
					Source:  name,
					Message: fmt.Sprintf("skipping link with a broken target: %s", header.Linkname),
				})
				logger.Warn("skipping link with a broken target", "entry", name, "link-target", header.Linkname)
				continue
			}
			entryErr = linkErr
		case tar.TypeReg, tar.TypeRegA:
			entryErr = extractRegularFile(tarReader, target)
		default:
			events = append(events, Event{
				Type:    EventInfo,
				Source:  name,
				Message: fmt.Sprintf("skipping entry of unsupported type: %d", header.Typeflag),
			})
			continue
		}

		if entryErr != nil {
			events = append(events, Event{
				Type:    EventError,
				Source:  name,
				Message: entryErr.Error(),
			})
			logger.Error("failed extracting entry", "entry", name, "reason", entryErr)
			continue
		}
	}

	return events, nil
}

// ExtractTarKeepingSymlinks extracts the archive at location into targetDir
// keeping symlinks and hardlinks, and fails when any entry reported an
// extraction error.
func ExtractTarKeepingSymlinks(location, targetDir string, logger hclog.Logger) error {
	events, err := ExtractTar(location, targetDir, false, logger)
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, event := range events {
		if event.Type == EventError {
			result = multierror.Append(result, fmt.Errorf("%s: %s", event.Source, event.Message))
		}
	}
	if result != nil {
		return errors.Wrapf(result.ErrorOrNil(), "failed to extract: %s to: %s", location, targetDir)
	}
	return nil
}

func extractRegularFile(reader io.Reader, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), extractedMode); err != nil {
		return err
	}
	// overwrite whatever is at the target location
	os.Remove(target)
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, extractedMode)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(out, reader)
	if closeErr := out.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return copyErr
	}
	return os.Chmod(target, extractedMode)
}

// extractLink creates a hardlink or a symlink for the header. The first return
// value reports a broken link target, which is not an extraction error.
func extractLink(header *tar.Header, name, target, targetDir string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(target), extractedMode); err != nil {
		return false, err
	}
	os.Remove(target)
	if header.Typeflag == tar.TypeLink {
		// hardlink targets are relative to the archive root
		linkTarget := filepath.Join(targetDir, filepath.FromSlash(strings.TrimLeft(header.Linkname, "/")))
		if _, err := os.Lstat(linkTarget); err != nil {
			return true, nil
		}
		return false, os.Link(linkTarget, target)
	}
	// symlink targets are relative to the entry's own directory
	linkTarget := header.Linkname
	resolved := linkTarget
	if !filepath.IsAbs(linkTarget) {
		resolved = filepath.Join(filepath.Dir(target), filepath.FromSlash(linkTarget))
	} else {
		resolved = filepath.Join(targetDir, filepath.FromSlash(strings.TrimLeft(linkTarget, "/")))
	}
	if _, err := os.Lstat(resolved); err != nil {
		return true, nil
	}
	return false, os.Symlink(linkTarget, target)
}

func hasDotDotSegment(path string) bool {
	for _, segment := range strings.Split(path, "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}

// newTarReader returns a tar reader over r, transparently un-gzipping the
// stream when the gzip magic is detected.
func newTarReader(r io.Reader) (*tar.Reader, error) {
	magic := make([]byte, 2)
	n, err := io.ReadFull(r, magic)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}

	rewound := io.MultiReader(strings.NewReader(string(magic[:n])), r)

	if n == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(rewound)
		if err != nil {
			return nil, err
		}
		return tar.NewReader(gz), nil
	}

	return tar.NewReader(rewound), nil
}
