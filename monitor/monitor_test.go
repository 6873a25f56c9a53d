package monitor_test

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/frobware/go-vhoststats"
	"github.com/frobware/go-vhoststats/kmem"
	"github.com/frobware/go-vhoststats/monitor"
	"github.com/frobware/go-vhoststats/snapshot"
	"github.com/frobware/go-vhoststats/store/sqlite"
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

// kernel serves copies out of a byte slice based at 0xc0000000.
type kernel struct {
	mem  []byte
	fail error
}

const kernelBase = vhoststats.KernelAddress(0xc0000000)

func (k *kernel) CopyFromKernel(dst []byte, src vhoststats.KernelAddress) error {
	if k.fail != nil {
		return k.fail
	}
	copy(dst, k.mem[src-kernelBase:])
	return nil
}

func (k *kernel) put(addr vhoststats.KernelAddress, f *vhoststats.Family, name string, v uint64) {
	fld, _ := f.Lookup(name)
	binary.NativeEndian.PutUint64(k.mem[int(addr-kernelBase)+fld.Offset:], v)
}

type fixture struct {
	base   string
	kernel *kernel
	opener snapshot.Opener
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	k := &kernel{mem: make([]byte, 4096)}
	base := t.TempDir()
	return &fixture{
		base:   base,
		kernel: k,
		opener: snapshot.Opener{
			Resolver: sysfs.NewResolver(base, testLogger()),
			Strategy: kmem.Copy{Floor: kernelBase, Copier: k, Logger: testLogger()},
			Logger:   testLogger(),
		},
	}
}

func (f *fixture) publish(t *testing.T, kind vhoststats.Kind, id string, addr vhoststats.KernelAddress) {
	t.Helper()
	dir := filepath.Join(f.base, kind.Dir(), id)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, sysfs.StatsPtrFile), []byte(addr.String()[2:]+"\n"), 0644))
}

func TestPoll_Deltas(t *testing.T) {
	f := newFixture(t)
	addr := kernelBase + 0x100
	f.publish(t, vhoststats.KindDevice, "d.1", addr)
	f.kernel.put(addr, vhoststats.DeviceFamily, "device_attach", 10)
	f.kernel.put(addr, vhoststats.DeviceFamily, "device_detach", math.MaxUint64-1)

	snaps := []*snapshot.Snapshot{f.opener.Device("d.1"), f.opener.Device("absent")}
	defer snapshot.CloseAll(snaps)

	p := monitor.NewPoller(snaps, monitor.Options{Logger: testLogger()})

	first := p.Poll()
	require.Len(t, first, 2)
	assert.True(t, first[0].Enabled)
	assert.NoError(t, first[0].Err)
	assert.Equal(t, addr, first[0].Address)
	assert.Nil(t, first[0].Deltas)
	v, d, ok := first[0].Get("device_attach")
	require.True(t, ok)
	assert.Equal(t, uint64(10), v)
	assert.Zero(t, d)

	assert.False(t, first[1].Enabled)
	assert.Len(t, first[1].Values, vhoststats.DeviceFamily.Len(), "disabled snapshots report zeros")

	f.kernel.put(addr, vhoststats.DeviceFamily, "device_attach", 15)
	f.kernel.put(addr, vhoststats.DeviceFamily, "device_detach", 2) // wrapped

	second := p.Poll()
	_, d, _ = second[0].Get("device_attach")
	assert.Equal(t, uint64(5), d)
	_, d, _ = second[0].Get("device_detach")
	assert.Equal(t, uint64(4), d, "delta wraps across overflow")

	_, _, ok = second[0].Get("no_such_field")
	assert.False(t, ok)
}

func TestPoll_RefreshErrorReported(t *testing.T) {
	f := newFixture(t)
	addr := kernelBase
	f.publish(t, vhoststats.KindWorker, "w.1", addr)
	f.kernel.put(addr, vhoststats.WorkerFamily, "loops", 1)

	snaps := []*snapshot.Snapshot{f.opener.Worker("w.1")}
	defer snapshot.CloseAll(snaps)
	p := monitor.NewPoller(snaps, monitor.Options{Logger: testLogger()})
	p.Poll()

	f.kernel.fail = unix.EFAULT
	failed := p.Poll()
	require.Error(t, failed[0].Err)
	assert.ErrorIs(t, failed[0].Err, unix.EFAULT)
	assert.Nil(t, failed[0].Values)

	// The next good sample's delta is against the last good one.
	f.kernel.fail = nil
	f.kernel.put(addr, vhoststats.WorkerFamily, "loops", 4)
	ok := p.Poll()
	require.NoError(t, ok[0].Err)
	_, d, _ := ok[0].Get("loops")
	assert.Equal(t, uint64(3), d)
}

func TestRun_Count(t *testing.T) {
	f := newFixture(t)
	f.publish(t, vhoststats.KindVirtqueue, "q.0", kernelBase)
	snaps := []*snapshot.Snapshot{f.opener.Virtqueue("q.0")}
	defer snapshot.CloseAll(snaps)

	p := monitor.NewPoller(snaps, monitor.Options{Interval: time.Millisecond, Count: 3, Logger: testLogger()})
	rounds := 0
	err := p.Run(context.Background(), func(ctx context.Context, samples []monitor.Sample) error {
		rounds++
		require.Len(t, samples, 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rounds)
}

func TestRun_StopAndErrors(t *testing.T) {
	p := monitor.NewPoller(nil, monitor.Options{Interval: time.Millisecond, Logger: testLogger()})

	rounds := 0
	err := p.Run(context.Background(), func(context.Context, []monitor.Sample) error {
		rounds++
		if rounds == 2 {
			return monitor.ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rounds)

	boom := errors.New("boom")
	err = p.Run(context.Background(), func(context.Context, []monitor.Sample) error { return boom })
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	err = monitor.NewPoller(nil, monitor.Options{Interval: time.Hour}).Run(ctx, func(context.Context, []monitor.Sample) error {
		cancel()
		return nil
	})
	assert.NoError(t, err, "cancellation is a clean stop")
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publish(t, vhoststats.KindDevice, "d.1", kernelBase)
	f.kernel.put(kernelBase, vhoststats.DeviceFamily, "delay_per_work", 42)

	st, err := sqlite.NewInMemory(ctx, testLogger())
	require.NoError(t, err)
	defer st.Close()
	sess, err := st.BeginSession(ctx, kmem.StrategyCopy)
	require.NoError(t, err)

	snaps := []*snapshot.Snapshot{f.opener.Device("d.1"), f.opener.Device("missing")}
	defer snapshot.CloseAll(snaps)

	var seen int
	count := func(_ context.Context, samples []monitor.Sample) error {
		seen += len(samples)
		return nil
	}
	p := monitor.NewPoller(snaps, monitor.Options{Interval: time.Millisecond, Count: 2, Logger: testLogger()})
	require.NoError(t, p.Run(ctx, monitor.Chain(monitor.Recorder(st, sess.ID), count)))
	assert.Equal(t, 4, seen)

	history, err := st.History(ctx, vhoststats.KindDevice, "d.1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, uint64(42), history[0].Values[0])
	assert.Equal(t, sess.ID, history[0].SessionID)

	missing, err := st.History(ctx, vhoststats.KindDevice, "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, missing, "disabled snapshots are not recorded")
}

func TestToStore_Error(t *testing.T) {
	smp := monitor.Sample{Kind: vhoststats.KindWorker, ID: "w.1", Values: []uint64{1}, Err: errors.New("bad address")}
	out := monitor.ToStore(smp)
	assert.Equal(t, "bad address", out.Err)
	assert.Nil(t, out.Values)
}

func TestSample_GetZeroValue(t *testing.T) {
	_, _, ok := monitor.Sample{}.Get("loops")
	assert.False(t, ok)
	_, _, ok = monitor.Sample{Kind: vhoststats.KindWorker}.Get("loops")
	assert.False(t, ok, "no values")
}
