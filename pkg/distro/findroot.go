package distro

import (
	"io/ioutil"
	"path/filepath"
	"strings"
)

// LinuxPaths are well known file and directory names found at the root of a
// Linux filesystem.
var LinuxPaths = map[string]bool{
	"usr":     true,
	"etc":     true,
	"var":     true,
	"home":    true,
	"sbin":    true,
	"sys":     true,
	"lib":     true,
	"bin":     true,
	"vmlinuz": true,
}

// WindowsPaths are well known file and directory names found at the root of a
// Windows filesystem.
var WindowsPaths = map[string]bool{
	"Program Files":             true,
	"Program Files(x86)":        true,
	"Windows":                   true,
	"ProgramData":               true,
	"Users":                     true,
	"$Recycle.Bin":              true,
	"PerfLogs":                  true,
	"System Volume Information": true,
}

// Walker lists directories the way os.walk does: for every visited directory
// it reports the directory location and the names of its child directories and
// files. Tests inject deterministic implementations.
type Walker interface {
	Walk(root string, visit func(top string, dirs, files []string) (descend bool, err error)) error
}

type osWalker struct{}

func (osWalker) Walk(root string, visit func(top string, dirs, files []string) (bool, error)) error {
	return walkDir(root, visit)
}

func walkDir(top string, visit func(top string, dirs, files []string) (bool, error)) error {
	entries, err := ioutil.ReadDir(top)
	if err != nil {
		return err
	}
	dirs := []string{}
	files := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		} else {
			files = append(files, entry.Name())
		}
	}
	descend, err := visit(top, dirs, files)
	if err != nil || !descend {
		return err
	}
	for _, dir := range dirs {
		if err := walkDir(filepath.Join(top, dir), visit); err != nil {
			return err
		}
	}
	return nil
}

// FindRoot returns the first directory at or below location which contains at
// least minPaths entries named in rootPaths. Descent stops when the depth, the
// number of path components below location, exceeds maxDepth; maxDepth 0 means
// unlimited. Returns an empty string when nothing matches. A nil walker uses
// the real filesystem.
func FindRoot(location string, maxDepth int, rootPaths map[string]bool, minPaths int, walker Walker) (string, error) {
	if walker == nil {
		walker = osWalker{}
	}
	found := ""
	err := walker.Walk(location, func(top string, dirs, files []string) (bool, error) {
		if found != "" {
			return false, nil
		}
		matches := 0
		for _, name := range append(append([]string{}, dirs...), files...) {
			if rootPaths[name] {
				matches++
			}
		}
		if matches >= minPaths {
			found = top
			return false, nil
		}
		if maxDepth > 0 && depthBelow(location, top) >= maxDepth {
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return found, nil
}

// depthBelow counts the path components of top below location.
func depthBelow(location, top string) int {
	rel, err := filepath.Rel(location, top)
	if err != nil || rel == "." {
		return 0
	}
	return len(strings.Split(filepath.ToSlash(rel), "/"))
}
