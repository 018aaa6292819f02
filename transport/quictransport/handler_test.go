package quictransport

import (
	"context"
	"errors"
	"testing"

	"github.com/muyun12/iceproxy"
	"github.com/muyun12/iceproxy/internal/reference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDatagramConn struct {
	sent [][]byte
	err  error
}

func (f *fakeDatagramConn) SendDatagram(payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeDatagramConn) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func TestSendRequestDatagramEncodesEnvelope(t *testing.T) {
	t.Parallel()

	fc := &fakeDatagramConn{}
	h := NewHandler(fc, reference.Endpoint{Transport: "quic"})

	result, err := h.SendRequest(context.Background(), reference.InvocationDescriptor{
		Operation: "notify",
		Mode:      reference.Datagram,
		Params:    []byte("hello"),
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
	require.Len(t, fc.sent, 1)

	op, params, err := decodeEnvelope(fc.sent[0])
	require.NoError(t, err)
	assert.Equal(t, "notify", op)
	assert.Equal(t, "hello", string(params))
}

func TestSendRequestDatagramFailureClassifiesAsLocalError(t *testing.T) {
	t.Parallel()

	fc := &fakeDatagramConn{err: errors.New("connection lost")}
	h := NewHandler(fc, reference.Endpoint{})

	_, err := h.SendRequest(context.Background(), reference.InvocationDescriptor{Operation: "notify", Mode: reference.Datagram})
	require.Error(t, err)
	var localErr *iceproxy.LocalError
	require.True(t, errors.As(err, &localErr))
	assert.Equal(t, iceproxy.ConnectFailed, localErr.Kind)
}

func TestBatchDatagramEnqueueAndFlush(t *testing.T) {
	t.Parallel()

	fc := &fakeDatagramConn{}
	h := NewHandler(fc, reference.Endpoint{})

	_, err := h.SendRequest(context.Background(), reference.InvocationDescriptor{Operation: "log", Mode: reference.BatchDatagram, Params: []byte("x")})
	require.NoError(t, err)

	queue, ok := h.AsBatchRequestQueue()
	require.True(t, ok)
	assert.Equal(t, 1, queue.Size())

	require.NoError(t, queue.Flush(context.Background()))
	assert.Equal(t, 0, queue.Size())
	assert.Len(t, fc.sent, 1)
}
