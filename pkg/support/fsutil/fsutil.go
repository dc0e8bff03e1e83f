// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil has file system helpers shared by the loaders of weights and fixtures.
package fsutil

import (
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ExpandHome replaces a leading "~" or "~user" in filePath by the home directory of the current
// (or the named) user. Other paths are returned unchanged.
func ExpandHome(filePath string) (string, error) {
	if !strings.HasPrefix(filePath, "~") {
		return filePath, nil
	}
	userName, rest, _ := strings.Cut(filePath[1:], "/")
	var (
		usr *user.User
		err error
	)
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to find the home directory for path %q", filePath)
	}
	return filepath.Join(usr.HomeDir, rest), nil
}
