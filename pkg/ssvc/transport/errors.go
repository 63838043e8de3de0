// SSVC Gateway
// Copyright (c) 2026 The SSVC Gateway Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of SSVC Gateway.
//
// SSVC Gateway is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SSVC Gateway is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with SSVC Gateway.  If not, see <http://www.gnu.org/licenses/>.

package transport

import (
	"errors"
	"fmt"
)

var (
	ErrWriteIncomplete = errors.New("serial write incomplete")
	ErrWriteTimeout    = errors.New("serial transmit did not complete in time")
	ErrPortClosed      = errors.New("serial port closed")
	ErrNotOpen         = errors.New("serial port not open")
)

// DecodeError describes a line that could not be parsed as a JSON object.
// It is counted by the reader and never handed to callers of Send.
type DecodeError struct {
	Err  error
	Line string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode controller line %q: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
