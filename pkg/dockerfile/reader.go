package dockerfile

import (
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/builder/dockerignore"
	git "github.com/go-git/go-git/v5"
	"github.com/pkg/errors"
)

// ReadResult contains a parsed Dockerfile and optionally the .dockerignore
// patterns found next to it.
type ReadResult struct {
	Dockerfile      *Dockerfile
	ExcludePatterns []string
}

// ReadFromString reads a Dockerfile from input. The input can be:
//
//   - literal Dockerfile content
//   - an http:// or https:// URL
//   - a git+http(s)://host:port/path/to/repo.git:/path/to/Dockerfile[#<commit-hash | branch-name | tag-name>] URL
//   - an ssh://, git:// or git+ssh:// URL in the same format
//   - a path to a local file
//
// tempDirectory is used as the working area for remote sources.
func ReadFromString(input string, tempDirectory string) (*ReadResult, error) {

	if strings.HasPrefix(input, "git+http://") ||
		strings.HasPrefix(input, "git+https://") ||
		strings.HasPrefix(input, "git+ssh://") ||
		strings.HasPrefix(input, "git://") ||
		strings.HasPrefix(input, "ssh://") {
		return readFromGit(input, tempDirectory)
	}

	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		httpResponse, err := http.Get(input)
		if err != nil {
			return nil, err
		}
		defer httpResponse.Body.Close()
		content, err := ioutil.ReadAll(httpResponse.Body)
		if err != nil && err != io.EOF {
			return nil, err
		}
		df, err := ParseBytes(content, input)
		if err != nil {
			return nil, err
		}
		return &ReadResult{Dockerfile: df, ExcludePatterns: []string{}}, nil
	}

	statResult, statErr := os.Stat(input)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			// assume literal input:
			df, err := ParseBytes([]byte(input), "")
			if err != nil {
				return nil, err
			}
			return &ReadResult{Dockerfile: df, ExcludePatterns: []string{}}, nil
		}
		return nil, statErr
	}
	if statResult.IsDir() {
		return nil, errors.Errorf("directory: %s", input)
	}

	return readFromFile(input)
}

func readFromFile(location string) (*ReadResult, error) {
	df, err := ParseFile(location)
	if err != nil {
		return nil, err
	}
	excludes, err := readExcludes(location)
	if err != nil {
		return nil, err
	}
	return &ReadResult{Dockerfile: df, ExcludePatterns: excludes}, nil
}

func readFromGit(input, tempDirectory string) (*ReadResult, error) {
	u, err := url.Parse(input)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid URL: %s", input)
	}

	branchToCheckout := u.Fragment
	pathParts := strings.Split(u.Path, ":")
	if len(pathParts) != 2 {
		return nil, fmt.Errorf("invalid path: %s, expected /org/repo.git:/file/in/repo", u.Path)
	}

	pathInRepo := pathParts[1]
	u.Path = pathParts[0]
	u.Fragment = ""

	// for git+http(s), fix the scheme by removing git+
	repoURL := u.String()
	if strings.HasPrefix(repoURL, "git+http://") || strings.HasPrefix(repoURL, "git+https://") {
		repoURL = repoURL[4:]
	}

	repoDestDir := filepath.Join(tempDirectory, "sources")
	repo, err := git.PlainClone(repoDestDir, false, &git.CloneOptions{
		URL: repoURL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed clone")
	}

	if branchToCheckout != "" {
		if err := checkoutRef(repo, branchToCheckout); err != nil {
			return nil, err
		}
	}

	filePath := filepath.Join(repoDestDir, filepath.FromSlash(pathInRepo))
	statResult, statErr := os.Stat(filePath)
	if statErr != nil {
		return nil, statErr
	}
	if statResult.IsDir() {
		return nil, errors.Errorf("directory: %s", filePath)
	}

	return readFromFile(filePath)
}

func checkoutRef(repo *git.Repository, refToCheckout string) error {
	remotes, err := repo.Remotes()
	if err != nil {
		return errors.Wrap(err, "failed listing remotes")
	}
	refs, err := remotes[0].List(&git.ListOptions{})
	if err != nil {
		return errors.Wrap(err, "failed listing remote refs")
	}
	for _, ref := range refs {
		if !ref.Name().IsBranch() && !ref.Name().IsTag() {
			continue
		}
		if ref.Hash().String() == refToCheckout || strings.HasSuffix(ref.Name().String(), fmt.Sprintf("/%s", refToCheckout)) {
			worktree, err := repo.Worktree()
			if err != nil {
				return errors.Wrap(err, "failed fetching worktree")
			}
			if err := worktree.Checkout(&git.CheckoutOptions{Hash: ref.Hash()}); err != nil {
				return errors.Wrapf(err, "failed checkout: %s", refToCheckout)
			}
			return nil
		}
	}
	return nil
}

// readExcludes loads the .dockerignore patterns next to the Dockerfile, when
// one exists.
func readExcludes(dockerfilePath string) ([]string, error) {
	emptyResponse := []string{}
	dockerignoreFilePath := filepath.Join(filepath.Dir(dockerfilePath), ".dockerignore")
	if _, statErr := os.Stat(dockerignoreFilePath); statErr != nil {
		if os.IsNotExist(statErr) {
			return emptyResponse, nil
		}
		return emptyResponse, errors.Wrap(statErr, "not able to check if .dockerignore file exists")
	}
	ignoreFile, fileErr := os.Open(dockerignoreFilePath)
	if fileErr != nil {
		return emptyResponse, errors.Wrap(fileErr, "not able to open .dockerignore file")
	}
	defer ignoreFile.Close()

	excludePatterns, ignoreReadErr := dockerignore.ReadAll(ignoreFile)
	if ignoreReadErr != nil {
		return emptyResponse, errors.Wrap(ignoreReadErr, "not able to read .dockerignore file")
	}
	return excludePatterns, nil
}
