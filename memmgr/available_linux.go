// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

//go:build linux

package memmgr

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// cgroupRoot returns the first cgroupv2 mountpoint listed in
// /proc/mounts, the same lookup the teacher's cgroup package performs
// for process management; here it is used read-only, purely to find
// the current process's memory.max file.
func cgroupRoot() (string, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return "", err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		parts := strings.Fields(s.Text())
		if len(parts) >= 3 && parts[2] == "cgroup2" {
			return parts[1], nil
		}
	}
	return "", os.ErrNotExist
}

// selfCgroupDir returns the absolute path of the current process's
// cgroupv2 directory, or an error if the process isn't (purely) a
// member of a cgroupv2 hierarchy.
func selfCgroupDir() (string, error) {
	text, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return "", err
	}
	if len(text) < 3 || text[0] != '0' || text[1] != ':' || text[2] != ':' {
		return "", fmt.Errorf("not a pure cgroupv2 member: %s", text)
	}
	text = bytes.TrimSpace(text)
	i := bytes.IndexByte(text, '/')
	if i < 0 {
		return "", fmt.Errorf("%s is not a valid cgroup", text)
	}
	root, err := cgroupRoot()
	if err != nil {
		return "", err
	}
	return root + string(text[i:]), nil
}

// cgroupMemoryMax reads memory.max from the current process's
// cgroupv2 directory. It returns an error (or 0, "max" means
// unlimited) when no usable limit is set.
func cgroupMemoryMax() (int64, error) {
	dir, err := selfCgroupDir()
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(dir + "/memory.max")
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	if s == "max" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// procMemTotal reads MemTotal from /proc/meminfo, in bytes.
func procMemTotal() (int64, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var kb int64
	if _, err := fmt.Fscanf(f, "MemTotal: %d kB\n", &kb); err != nil {
		return 0, err
	}
	return kb * 1024, nil
}

// DefaultAvailableBytes estimates the memory budget available to the
// process: a cgroupv2 memory.max limit if one is set, otherwise
// /proc/meminfo's MemTotal. It returns 0 if neither source is usable
// (e.g. non-Linux, or sandboxed without /proc).
func DefaultAvailableBytes() int64 {
	if max, err := cgroupMemoryMax(); err == nil && max > 0 {
		return max
	}
	if total, err := procMemTotal(); err == nil {
		return total
	}
	return 0
}
