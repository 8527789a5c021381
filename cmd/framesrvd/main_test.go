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

package main

import "testing"

func TestExtractConfigPathSpaceForm(t *testing.T) {
	got := extractConfigPath([]string{"-config", "/etc/framesrv.yaml", "-cache-size-gb=2"})
	if got != "/etc/framesrv.yaml" {
		t.Fatalf("extractConfigPath = %q", got)
	}
}

func TestExtractConfigPathEqualsForm(t *testing.T) {
	got := extractConfigPath([]string{"--config=/etc/framesrv.yaml"})
	if got != "/etc/framesrv.yaml" {
		t.Fatalf("extractConfigPath = %q", got)
	}
}

func TestExtractConfigPathAbsent(t *testing.T) {
	got := extractConfigPath([]string{"-cache-size-gb=2"})
	if got != "" {
		t.Fatalf("extractConfigPath = %q, want empty", got)
	}
}
