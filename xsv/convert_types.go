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

package xsv

import (
	"fmt"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"golang.org/x/exp/slices"
)

// appendFunc converts a column's text value and appends it to the
// Arrow builder backing that column.
type appendFunc func(b array.Builder, text string) error

func appendString(b array.Builder, text string) error {
	b.(*array.StringBuilder).Append(text)
	return nil
}

func appendFloat(b array.Builder, text string) error {
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return err
	}
	b.(*array.Float64Builder).Append(v)
	return nil
}

func appendInt(b array.Builder, text string) error {
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return err
	}
	b.(*array.Int64Builder).Append(v)
	return nil
}

func appendBool(b array.Builder, text string) error {
	v, err := strconv.ParseBool(text)
	if err != nil {
		return fmt.Errorf("invalid bool format %q (try using custom values)", text)
	}
	b.(*array.BooleanBuilder).Append(v)
	return nil
}

func appendCustomBool(trueValues, falseValues []string) appendFunc {
	return func(b array.Builder, text string) error {
		switch {
		case slices.Contains(trueValues, text):
			b.(*array.BooleanBuilder).Append(true)
		case slices.Contains(falseValues, text):
			b.(*array.BooleanBuilder).Append(false)
		default:
			return fmt.Errorf("invalid boolean format %q (no match with custom values)", text)
		}
		return nil
	}
}

func appendDateTimeText(b array.Builder, text string) error {
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return appendTimestamp(b, t)
	}
	t, err := time.Parse("2006-01-02", text)
	if err != nil {
		return fmt.Errorf("invalid date/time format %q", text)
	}
	return appendTimestamp(b, t)
}

func appendEpochSec(b array.Builder, text string) error {
	e, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return err
	}
	return appendTimestamp(b, time.Unix(e, 0).UTC())
}

func appendEpochMSec(b array.Builder, text string) error {
	e, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return err
	}
	return appendTimestamp(b, time.UnixMilli(e).UTC())
}

func appendEpochUSec(b array.Builder, text string) error {
	e, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return err
	}
	return appendTimestamp(b, time.UnixMicro(e).UTC())
}

func appendEpochNSec(b array.Builder, text string) error {
	e, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return err
	}
	return appendTimestamp(b, time.Unix(0, e).UTC())
}

func appendTimestamp(b array.Builder, t time.Time) error {
	b.(*array.TimestampBuilder).Append(arrow.Timestamp(t.UnixMicro()))
	return nil
}
