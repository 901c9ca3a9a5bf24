// Copyright (c) 2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// FileExists reports whether the named file or directory exists.
func FileExists(filePath string) (bool, error) {
	_, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to the current user's home directory, or ~otheruser
	// to otheruser's home directory.  On Windows, both forward and backward
	// slashes can be used.
	if path[0] == '~' {
		var otherUser string
		var rest string
		if i := strings.IndexAny(path, `\/`); i == -1 {
			otherUser = path[1:]
		} else {
			otherUser = path[1:i]
			rest = path[i:]
		}

		var homeDir string
		if otherUser == "" {
			u, err := user.Current()
			if err != nil {
				return path
			}
			homeDir = u.HomeDir
		} else {
			u, err := user.Lookup(otherUser)
			if err != nil {
				return path
			}
			homeDir = u.HomeDir
		}
		path = homeDir + rest
	}

	return filepath.Clean(os.ExpandEnv(path))
}
