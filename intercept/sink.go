// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package intercept

import "github.com/openpull/openpull/logentry"

// Sink receives parsed log entries. *delivery.Delivery implements this.
type Sink interface {
	SendLog(entry logentry.LogEntry)
}
