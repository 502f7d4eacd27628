//go:build !linux

package integration

import "time"

func birthTime(string) (time.Time, bool) {
	return time.Time{}, false
}
