// Package mono provides a monotonic clock for path-expiry deadlines and
// housekeeping intervals. All arithmetic on the values it returns is
// expected to saturate rather than wrap.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

var start = time.Now()

// NanoTime returns nanoseconds elapsed since an arbitrary, process-local
// epoch. Only differences between two NanoTime() calls are meaningful.
func NanoTime() int64 { return time.Since(start).Nanoseconds() }

// MicroTime is the unit the path table and housekeeper operate in
// (spec: "absolute microsecond deadline").
func MicroTime() int64 { return NanoTime() / 1000 }
