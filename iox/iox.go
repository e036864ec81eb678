// Package iox provides I/O helpers for resource cleanup.
package iox

import "io"

// DrainLimit caps how much of an unread response body DrainClose consumes.
const DrainLimit = 64 << 10

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// DrainClose reads up to DrainLimit bytes of rc before closing it so the
// underlying HTTP connection can be reused:
//
//	defer iox.DrainClose(resp.Body)
func DrainClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, DrainLimit))
	_ = rc.Close()
}

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}
