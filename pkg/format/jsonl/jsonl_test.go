package jsonl_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/yairfalse/traceview/pkg/domain"
	"github.com/yairfalse/traceview/pkg/format/jsonl"
	"github.com/yairfalse/traceview/pkg/stream"
)

const sampleTrace = `{"ts":100,"cpu":0,"pid":11,"event":"sched_switch","task":"bash","info":"prev=bash next=vim","fields":{"prev_prio":120}}
{"ts":150,"cpu":1,"pid":12,"event":"sched_wakeup","task":"vim","info":"target_cpu=1"}
{"ts":200,"cpu":0,"pid":11,"event":"sched_switch","task":"bash","info":"prev=vim next=bash"}
{"ts":250,"cpu":1,"pid":13,"event":"irq_handler_entry","task":"ksoftirqd","latency":"d...","info":"irq=42"}
`

func writeTrace(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func openTrace(t *testing.T, content string) *stream.Stream {
	t.Helper()
	s := stream.New(0, zaptest.NewLogger(t))
	require.NoError(t, s.Attach(jsonl.New(zaptest.NewLogger(t)), writeTrace(t, content)))
	t.Cleanup(func() { s.Release() })
	return s
}

func TestOpen(t *testing.T) {
	s := openTrace(t, sampleTrace)

	assert.Equal(t, 2, s.NCPUs)
	assert.Equal(t, 3, s.NEvents)

	id, ok := s.Format().EventIDByName(s, "sched_wakeup")
	require.True(t, ok)
	assert.Equal(t, 1, id, "event ids follow first appearance")

	_, ok = s.Format().EventIDByName(s, "nonexistent")
	assert.False(t, ok)

	ids, err := s.Format().AllEventIDs(s)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, ids)
}

func TestOpenMissingFile(t *testing.T) {
	s := stream.New(0, zaptest.NewLogger(t))
	err := s.Attach(jsonl.New(nil), "/nonexistent/trace.jsonl")
	assert.Error(t, err)
}

func TestLoadEntries(t *testing.T) {
	s := openTrace(t, sampleTrace)

	arena, err := s.Format().LoadEntries(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, arena.Entries, 4)
	assert.Zero(t, arena.Skipped)

	// Per-CPU chains in file order.
	require.Len(t, arena.CPUHeads, 2)
	cpu0 := arena.CPUHeads[0]
	assert.Equal(t, int64(100), arena.Entries[cpu0].TS)
	next := arena.Entries[cpu0].Next
	assert.Equal(t, int64(200), arena.Entries[next].TS)
	assert.Equal(t, domain.NoEntry, arena.Entries[next].Next)

	for i := range arena.Entries {
		assert.Equal(t, domain.VisibleAll, arena.Entries[i].Visible)
	}
}

func TestLoadEntriesSkipsBadLines(t *testing.T) {
	s := openTrace(t, `{"ts":1,"cpu":0,"pid":1,"event":"a"}
not json at all
{"ts":2,"cpu":0,"pid":1,"event":"a"}
`)
	arena, err := s.Format().LoadEntries(context.Background(), s)
	require.NoError(t, err)
	assert.Len(t, arena.Entries, 2)
	assert.Equal(t, 1, arena.Skipped)
}

// Offsets must survive CRLF line endings: the carriage return is part
// of the bytes consumed per line, so every re-read after the first line
// still lands on a record boundary.
func TestLoadEntriesCRLF(t *testing.T) {
	lines := strings.Split(sampleTrace, "\n")
	s := openTrace(t, strings.Join(lines, "\r\n"))

	arena, err := s.Format().LoadEntries(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, arena.Entries, 4)
	assert.Zero(t, arena.Skipped)

	for i, wantPID := range []int{11, 12, 11, 13} {
		pid, err := s.PID(&arena.Entries[i])
		require.NoError(t, err, "re-read of entry %d", i)
		assert.Equal(t, wantPID, pid)
	}
	info, err := s.Info(&arena.Entries[3])
	require.NoError(t, err)
	assert.Equal(t, "irq=42", info)
}

// Open doubles as the format probe, so it must reject files holding no
// decodable records instead of opening an empty stream.
func TestOpenRejectsNonTrace(t *testing.T) {
	s := stream.New(0, zaptest.NewLogger(t))
	err := s.Attach(jsonl.New(nil), writeTrace(t, "just some text\nnot a trace\n"))
	assert.Error(t, err)

	err = s.Attach(jsonl.New(nil), writeTrace(t, ""))
	assert.Error(t, err, "an empty file is not a jsonl trace")
}

func TestOnDemandReRead(t *testing.T) {
	s := openTrace(t, sampleTrace)
	arena, err := s.Format().LoadEntries(context.Background(), s)
	require.NoError(t, err)

	// The third line (offset of the t=200 record) re-reads correctly.
	e := &arena.Entries[2]
	require.Equal(t, int64(200), e.TS)

	pid, err := s.PID(e)
	require.NoError(t, err)
	assert.Equal(t, 11, pid)

	name, err := s.TaskName(e)
	require.NoError(t, err)
	assert.Equal(t, "bash", name)

	info, err := s.Info(e)
	require.NoError(t, err)
	assert.Equal(t, "prev=vim next=bash", info)

	eventName, err := s.EventName(e)
	require.NoError(t, err)
	assert.Equal(t, "sched_switch", eventName)

	latency, err := s.Latency(&arena.Entries[3])
	require.NoError(t, err)
	assert.Equal(t, "d...", latency)

	prio, err := s.ReadEventField(&arena.Entries[0], "prev_prio")
	require.NoError(t, err)
	assert.Equal(t, int64(120), prio)

	_, err = s.ReadEventField(&arena.Entries[0], "no_such_field")
	assert.Error(t, err)

	dump := s.DumpEntry(e)
	assert.Contains(t, dump, "sched_switch")
	assert.Contains(t, dump, "bash-11")
}

func TestLoadMatrix(t *testing.T) {
	s := openTrace(t, sampleTrace)
	m, err := s.Format().LoadMatrix(context.Background(), s)
	require.NoError(t, err)

	require.Equal(t, 4, m.Size())
	assert.Equal(t, []int64{100, 150, 200, 250}, m.TS)
	assert.Equal(t, []int32{11, 12, 11, 13}, m.PIDs)
	assert.Equal(t, []int16{0, 1, 0, 1}, m.CPUs)
}

func TestContentFilter(t *testing.T) {
	s := openTrace(t, sampleTrace)
	require.NoError(t, s.SetContentFilter("irq="))
	assert.True(t, s.ContentFilterActive())

	arena, err := s.Format().LoadEntries(context.Background(), s)
	require.NoError(t, err)

	cf := s.Format().(stream.ContentFilterer)
	matches := 0
	for i := range arena.Entries {
		if cf.MatchContent(s, &arena.Entries[i]) {
			matches++
		}
	}
	assert.Equal(t, 1, matches)

	s.ClearContentFilter()
	assert.False(t, s.ContentFilterActive())
}
