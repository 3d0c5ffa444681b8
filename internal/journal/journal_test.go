package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func TestFileSinkAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(FileConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, sink.Start(context.Background()))

	j := New(sink)
	require.NoError(t, j.Append(Record{
		Type:   RecordEntry,
		Signal: &schema.Signal{ID: "s-1", Ticker: "AAPL", Direction: schema.DirectionLong},
	}))
	require.NoError(t, j.Append(Record{
		Type:    RecordExit,
		Trigger: schema.ExitStopLoss,
		PnL:     -120.5,
	}))
	require.NoError(t, j.Close())

	files, err := filepath.Glob(filepath.Join(dir, "journal-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, records, 2)
	assert.Equal(t, RecordEntry, records[0].Type)
	require.NotNil(t, records[0].Signal)
	assert.Equal(t, "AAPL", records[0].Signal.Ticker)
	assert.False(t, records[0].Timestamp.IsZero())
	assert.Equal(t, schema.ExitStopLoss, records[1].Trigger)
	assert.Equal(t, -120.5, records[1].PnL)
}

func TestFileSinkRotatesBySize(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(FileConfig{Dir: dir, SegmentMaxBytes: 200})
	require.NoError(t, err)
	require.NoError(t, sink.Start(context.Background()))

	for range 5 {
		require.NoError(t, sink.Append(Record{
			Type:   RecordEntry,
			Signal: &schema.Signal{ID: "s", Ticker: "AAPL", Price: 200, StopLoss: 198},
		}))
	}
	require.NoError(t, sink.Close())

	files, err := filepath.Glob(filepath.Join(dir, "journal-*.jsonl"))
	require.NoError(t, err)
	assert.Greater(t, len(files), 1)
}

func TestFileSinkLifecycleErrors(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(FileConfig{Dir: dir})
	require.NoError(t, err)

	assert.ErrorIs(t, sink.Append(Record{Type: RecordEntry}), ErrNotStarted)

	require.NoError(t, sink.Start(context.Background()))
	assert.ErrorIs(t, sink.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, sink.Close())
	assert.ErrorIs(t, sink.Append(Record{Type: RecordEntry}), ErrClosed)
}

func TestFileConfigValidate(t *testing.T) {
	assert.Error(t, FileConfig{}.Validate())
	assert.NoError(t, FileConfig{Dir: "x"}.withDefaults().Validate())
}

func TestPGConfigDSN(t *testing.T) {
	dsn, err := PGConfig{User: "trader", Password: "pw", Database: "journal"}.dsn()
	require.NoError(t, err)
	assert.Equal(t, "postgres://trader:pw@localhost:5432/journal?sslmode=disable", dsn)

	dsn, err = PGConfig{ConnString: "postgres://x"}.dsn()
	require.NoError(t, err)
	assert.Equal(t, "postgres://x", dsn)
}
