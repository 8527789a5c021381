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

import (
	"fmt"
	"os"
	"strings"
)

var version = "development"

func main() {
	args := os.Args[1:]
	useSubCommand := len(args) > 0 && !strings.HasPrefix(args[0], "-")
	subCommand := "serve"
	if useSubCommand {
		subCommand = args[0]
		args = args[1:]
	}
	switch subCommand {
	case "serve":
		runServe(args)
	case "ingest":
		runIngest(args)
	default:
		fmt.Fprintf(os.Stderr, "invalid sub-command %q (want \"serve\" or \"ingest\")\n", subCommand)
		os.Exit(1)
	}
}

// extractConfigPath pre-scans args for -config/--config before the
// real flag.FlagSet parses the rest, since flag can't report one
// flag's value ahead of a full Parse over a set it doesn't know yet.
func extractConfigPath(args []string) string {
	for i, a := range args {
		switch {
		case a == "-config" || a == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(a, "-config="):
			return strings.TrimPrefix(a, "-config=")
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}
