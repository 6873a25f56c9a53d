package kmem_test

import (
	"encoding/binary"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frobware/go-vhoststats"
)

// testLogger returns a logger for tests. By default it discards all output.
// Set VHOSTSTATS_TEST_VERBOSE=1 to enable logging.
func testLogger() *slog.Logger {
	if os.Getenv("VHOSTSTATS_TEST_VERBOSE") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDevice is a regular file standing in for the kernel-memory
// device: byte offset N holds "kernel address" N.
type fakeDevice struct {
	path string
	data []byte
}

// newFakeDevice creates a device of the given number of pages, each
// 8-byte word holding its own offset so any misplaced read shows.
func newFakeDevice(t *testing.T, pages int) *fakeDevice {
	t.Helper()
	size := pages * os.Getpagesize()
	data := make([]byte, size)
	for off := 0; off+8 <= size; off += 8 {
		binary.NativeEndian.PutUint64(data[off:], uint64(off)|0xa5a5<<48)
	}
	path := filepath.Join(t.TempDir(), "kmem")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return &fakeDevice{path: path, data: data}
}

// poke rewrites one word in the backing file, as a kernel writer would.
func (d *fakeDevice) poke(t *testing.T, addr vhoststats.KernelAddress, v uint64) {
	t.Helper()
	f, err := os.OpenFile(d.path, os.O_WRONLY, 0)
	require.NoError(t, err)
	defer f.Close()
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], v)
	_, err = f.WriteAt(buf[:], int64(addr))
	require.NoError(t, err)
	binary.NativeEndian.PutUint64(d.data[addr:], v)
}

// fileCopier serves privileged copies from a fakeDevice.
type fileCopier struct {
	dev   *fakeDevice
	calls int
	err   error
}

func (c *fileCopier) CopyFromKernel(dst []byte, src vhoststats.KernelAddress) error {
	c.calls++
	if c.err != nil {
		return c.err
	}
	f, err := os.Open(c.dev.path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.ReadAt(dst, int64(src))
	return err
}
