package sysfs_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-vhoststats"
	"github.com/frobware/go-vhoststats/sysfs"
)

// testLogger returns a logger for tests. By default it discards all output.
// Set VHOSTSTATS_TEST_VERBOSE=1 to enable logging.
func testLogger() *slog.Logger {
	if os.Getenv("VHOSTSTATS_TEST_VERBOSE") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// publish writes a stats_ptr control file the way the kernel lays it out.
func publish(t *testing.T, base string, kind vhoststats.Kind, id, content string) {
	t.Helper()
	dir := filepath.Join(base, kind.Dir(), id)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, sysfs.StatsPtrFile), []byte(content), 0644))
}

func TestResolve_Resolved(t *testing.T) {
	base := t.TempDir()
	publish(t, base, vhoststats.KindWorker, "w.1", "00000000deadbe00\n")
	publish(t, base, vhoststats.KindDevice, "d.1", "FFFF8800DEAD0000\n")
	publish(t, base, vhoststats.KindVirtqueue, "d.1.0", "ffff8800dead1000\r\n")

	r := sysfs.NewResolver(base, testLogger())

	res := r.Resolve(vhoststats.KindWorker, "w.1")
	require.NoError(t, res.Err)
	assert.Equal(t, sysfs.StatusResolved, res.Status)
	assert.Equal(t, vhoststats.KernelAddress(0xdeadbe00), res.Address)
	assert.Equal(t, filepath.Join(base, "worker", "w.1", "stats_ptr"), res.Path)
	assert.True(t, res.Enabled())

	res = r.Resolve(vhoststats.KindDevice, "d.1")
	require.NoError(t, res.Err)
	assert.Equal(t, vhoststats.KernelAddress(0xffff8800dead0000), res.Address)
	assert.Equal(t, filepath.Join(base, "dev", "d.1", "stats_ptr"), res.Path)

	res = r.Resolve(vhoststats.KindVirtqueue, "d.1.0")
	require.NoError(t, res.Err)
	assert.Equal(t, vhoststats.KernelAddress(0xffff8800dead1000), res.Address)
	assert.Equal(t, filepath.Join(base, "vq", "d.1.0", "stats_ptr"), res.Path)
}

func TestResolve_NotFound(t *testing.T) {
	base := t.TempDir()
	r := sysfs.NewResolver(base, testLogger())

	for _, id := range []string{"w.404", "", "..", "a/b"} {
		res := r.Resolve(vhoststats.KindWorker, id)
		assert.Equal(t, sysfs.StatusNotFound, res.Status, "id %q", id)
		assert.False(t, res.Enabled())
		assert.Zero(t, res.AddressOrZero())

		var nf vhoststats.ErrNotFound
		assert.True(t, errors.As(res.Err, &nf), "id %q: %v", id, res.Err)
	}

	res := r.Resolve(vhoststats.KindUnspecified, "w.1")
	assert.Equal(t, sysfs.StatusNotFound, res.Status)
}

func TestResolve_ParseError(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"newline only", "\n"},
		{"missing terminator", "deadbe00"},
		{"hex prefix", "0xdeadbe00\n"},
		{"not hex", "deadbeeg\n"},
		{"two tokens", "dead beef\n"},
		{"two lines", "deadbe00\ndeadbe00\n"},
		{"leading space", " deadbe00\n"},
		{"too wide", "1ffffffffffffffff\n"},
		{"negative", "-1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := t.TempDir()
			publish(t, base, vhoststats.KindVirtqueue, "q", tt.content)

			res := sysfs.NewResolver(base, testLogger()).Resolve(vhoststats.KindVirtqueue, "q")
			assert.Equal(t, sysfs.StatusParseError, res.Status)
			assert.False(t, res.Enabled())
			assert.Zero(t, res.AddressOrZero())

			var pe vhoststats.ErrParse
			require.True(t, errors.As(res.Err, &pe), "got %v", res.Err)
			assert.Equal(t, res.Path, pe.Path)
		})
	}
}

func TestResolve_ZeroAddressIsDisabled(t *testing.T) {
	base := t.TempDir()
	publish(t, base, vhoststats.KindWorker, "w.0", "0\n")

	res := sysfs.NewResolver(base, testLogger()).Resolve(vhoststats.KindWorker, "w.0")
	require.NoError(t, res.Err)
	assert.Equal(t, sysfs.StatusResolved, res.Status)
	assert.True(t, res.Address.IsZero())
	assert.False(t, res.Enabled())
}

func TestResolve_UnreadableIsParseError(t *testing.T) {
	base := t.TempDir()
	// A directory where the control file should be cannot be read.
	require.NoError(t, os.MkdirAll(filepath.Join(base, "worker", "w.1", sysfs.StatsPtrFile), 0755))

	res := sysfs.NewResolver(base, testLogger()).Resolve(vhoststats.KindWorker, "w.1")
	assert.Equal(t, sysfs.StatusParseError, res.Status)
	assert.Error(t, res.Err)
}

func TestParseStatsPtr(t *testing.T) {
	got, err := sysfs.ParseStatsPtr([]byte("ffffffffffffffff\n"))
	require.NoError(t, err)
	assert.Equal(t, vhoststats.KernelAddress(0xffffffffffffffff), got)

	got, err = sysfs.ParseStatsPtr([]byte("AbC\n"))
	require.NoError(t, err)
	assert.Equal(t, vhoststats.KernelAddress(0xabc), got)
}

func TestNewResolver_Defaults(t *testing.T) {
	r := sysfs.NewResolver("", nil)
	assert.Equal(t, sysfs.DefaultBase, r.Base())
	assert.Equal(t, "/sys/class/vhost/worker/w.1/stats_ptr", r.Path(vhoststats.KindWorker, "w.1"))
}

func TestScanner_IDs(t *testing.T) {
	base := t.TempDir()
	publish(t, base, vhoststats.KindWorker, "w.2", "1\n")
	publish(t, base, vhoststats.KindWorker, "w.1", "1\n")
	publish(t, base, vhoststats.KindDevice, "d.1", "1\n")
	// An id directory without a control file is malformed.
	require.NoError(t, os.MkdirAll(filepath.Join(base, "worker", "w.3"), 0755))
	// Plain files in the kind directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(base, "worker", "uevent"), nil, 0644))

	var malformed []string
	s := sysfs.NewScanner(base).WithOnMalformed(func(path string, err error) {
		malformed = append(malformed, path)
	})

	ids, err := s.Collect(context.Background(), vhoststats.KindWorker)
	require.NoError(t, err)
	assert.Equal(t, []string{"w.1", "w.2"}, ids)
	assert.Equal(t, []string{filepath.Join(base, "worker", "w.3")}, malformed)

	ids, err = s.Collect(context.Background(), vhoststats.KindDevice)
	require.NoError(t, err)
	assert.Equal(t, []string{"d.1"}, ids)

	// No vq directory at all: nothing, no error.
	ids, err = s.Collect(context.Background(), vhoststats.KindVirtqueue)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestScanner_FollowsSymlinks(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(t.TempDir(), "devices", "w.7")
	require.NoError(t, os.MkdirAll(target, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(target, sysfs.StatsPtrFile), []byte("1\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "worker"), 0755))
	require.NoError(t, os.Symlink(target, filepath.Join(base, "worker", "w.7")))

	ids, err := sysfs.NewScanner(base).Collect(context.Background(), vhoststats.KindWorker)
	require.NoError(t, err)
	assert.Equal(t, []string{"w.7"}, ids)
}

func TestScanner_CancelledContext(t *testing.T) {
	base := t.TempDir()
	publish(t, base, vhoststats.KindWorker, "w.1", "1\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sysfs.NewScanner(base).Collect(ctx, vhoststats.KindWorker)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanner_EarlyStop(t *testing.T) {
	base := t.TempDir()
	publish(t, base, vhoststats.KindWorker, "w.1", "1\n")
	publish(t, base, vhoststats.KindWorker, "w.2", "1\n")

	var seen []string
	for id, err := range sysfs.NewScanner(base).IDs(context.Background(), vhoststats.KindWorker) {
		require.NoError(t, err)
		seen = append(seen, id)
		break
	}
	assert.Equal(t, []string{"w.1"}, seen)
}
