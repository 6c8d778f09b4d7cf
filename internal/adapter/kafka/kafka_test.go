package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	errs   []error
	calls  int
	writes [][]kafkago.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.writes = append(f.writes, msgs)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func testRecord() domain.SummaryRecord {
	return domain.SummaryRecord{
		ID:          "dmsp-0011223344556677",
		RunID:       "run-1",
		Province:    "ankara",
		Source:      domain.SourceDMSP,
		Metric:      "mean_radiance",
		Period:      "2012",
		Value:       17.5,
		ProcessedAt: time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC),
	}
}

func TestSerializeToMessage(t *testing.T) {
	r := testRecord()

	msg, err := serializeToMessage(r)
	require.NoError(t, err)

	assert.Equal(t, []byte("ankara"), msg.Key)
	assert.Contains(t, string(msg.Value), `"metric":"mean_radiance"`)
	assert.Contains(t, string(msg.Value), `"source":"dmsp"`)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "source", msg.Headers[0].Key)
	assert.Equal(t, []byte("dmsp"), msg.Headers[0].Value)
	assert.Equal(t, []byte("run-1"), msg.Headers[1].Value)
	assert.Equal(t, []byte(r.ProcessedAt.Format(time.RFC3339)), msg.Headers[2].Value)
}

func newTestWriter(fw *fakeWriter) *Writer {
	return &Writer{writer: fw, logger: slog.New(slog.NewTextHandler(io.Discard, nil)), maxElapsed: 2 * time.Second}
}

func TestLoadBatch_RetriesTransientErrors(t *testing.T) {
	fw := &fakeWriter{errs: []error{kafkago.LeaderNotAvailable, nil}}
	w := newTestWriter(fw)

	require.NoError(t, w.LoadBatch(context.Background(), []domain.SummaryRecord{testRecord(), testRecord()}))

	assert.Equal(t, 2, fw.calls)
	require.Len(t, fw.writes, 1)
	assert.Len(t, fw.writes[0], 2)
}

func TestLoadBatch_PermanentErrorStops(t *testing.T) {
	fw := &fakeWriter{errs: []error{kafkago.MessageSizeTooLarge}}
	w := newTestWriter(fw)

	err := w.LoadBatch(context.Background(), []domain.SummaryRecord{testRecord()})

	require.Error(t, err)
	assert.ErrorIs(t, err, kafkago.MessageSizeTooLarge)
	assert.Equal(t, 1, fw.calls)
}

func TestLoadBatch_CancelledContext(t *testing.T) {
	fw := &fakeWriter{errs: []error{errors.New("dial tcp: connection refused"), errors.New("dial tcp: connection refused")}}
	w := newTestWriter(fw)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.LoadBatch(ctx, []domain.SummaryRecord{testRecord()})
	assert.Error(t, err)
}

func TestLoadBatch_Empty(t *testing.T) {
	fw := &fakeWriter{}
	require.NoError(t, newTestWriter(fw).LoadBatch(context.Background(), nil))
	assert.Zero(t, fw.calls)
}
