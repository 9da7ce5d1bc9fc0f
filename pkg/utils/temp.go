package utils

import (
	"fmt"
	"io/ioutil"

	"github.com/gofrs/uuid"
)

// TempDir creates a unique directory under the OS temp root, named with the
// given prefix and a random UUID suffix, and returns its path.
func TempDir(prefix string) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return ioutil.TempDir("", fmt.Sprintf("%s-%s", prefix, id.String()))
}
