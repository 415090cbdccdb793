package asyncserial

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorker_PartialWriteRetriesSuffix(t *testing.T) {
	dev := &fakeDevice{writeScript: []int{2, 1}}
	p := openFake(t, dev, Config{})

	payload := []byte{1, 2, 3, 4, 5}
	n, err := p.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NoError(t, p.Flush())

	require.Equal(t, [][]byte{
		{1, 2, 3, 4, 5},
		{3, 4, 5},
		{4, 5},
	}, dev.written())
}

func TestWorker_SendsInOrder(t *testing.T) {
	dev := &fakeDevice{}
	p := openFake(t, dev, Config{})

	var want []byte
	for i := 0; i < 50; i++ {
		chunk := []byte{byte(i), byte(i * 3)}
		want = append(want, chunk...)
		_, err := p.Write(chunk)
		require.NoError(t, err)
	}
	require.NoError(t, p.Flush())

	var got []byte
	for _, w := range dev.written() {
		got = append(got, w...)
	}
	require.Equal(t, want, got)
}

func TestWorker_SingleWriteProducesNoEvent(t *testing.T) {
	dev := &fakeDevice{}
	p := openFake(t, dev, Config{})

	_, err := p.Write([]byte{0xAB, 0xCD})
	require.NoError(t, err)
	require.NoError(t, p.Flush())

	require.Equal(t, [][]byte{{0xAB, 0xCD}}, dev.written())
	_, st := p.events.TryRecv()
	require.Equal(t, recvEmpty, st)
}

func TestWorker_WriteCopiesCallerBuffer(t *testing.T) {
	dev := &fakeDevice{}
	p := openFake(t, dev, Config{})

	b := []byte{1, 2}
	_, err := p.Write(b)
	require.NoError(t, err)
	b[0] = 9
	require.NoError(t, p.Flush())
	require.Equal(t, [][]byte{{1, 2}}, dev.written())
}

func TestWorker_WriteErrorIsTerminal(t *testing.T) {
	statusErr := errors.New("FT_IO_ERROR")
	dev := &fakeDevice{writeErr: statusErr}
	p := openFake(t, dev, Config{})

	_, err := p.Write([]byte{1})
	require.NoError(t, err)

	err = p.Flush()
	require.ErrorIs(t, err, statusErr)

	var de *DeviceError
	require.True(t, errors.As(err, &de))
	require.Equal(t, "write", de.Op)

	_, err = p.Write([]byte{2})
	require.ErrorIs(t, err, statusErr)
	_, err = p.Read(make([]byte, 1))
	require.ErrorIs(t, err, statusErr)

	require.Eventually(t, func() bool { return dev.closes() == 1 }, time.Second, time.Millisecond)
}

func TestWorker_SetParamsFailureIsLocal(t *testing.T) {
	dev := &fakeDevice{}
	p := openFake(t, dev, Config{})
	ctx := context.Background()

	rejected := errors.New("FT_INVALID_BAUD_RATE")
	dev.set(func(f *fakeDevice) { f.configureErr = rejected })
	err := p.SetParams(ctx, SerialParams{Baud: 3})
	require.ErrorIs(t, err, rejected)

	_, err = p.Write([]byte{7})
	require.NoError(t, err)
	require.NoError(t, p.Flush())

	dev.set(func(f *fakeDevice) { f.configureErr = nil })
	next := SerialParams{Baud: 9600, DataBits: DataBits7, StopBits: StopBits2, Parity: ParityEven}
	require.NoError(t, p.SetParams(ctx, next))

	dev.mu.Lock()
	defer dev.mu.Unlock()
	require.Equal(t, []SerialParams{DefaultParams(), next}, dev.configs)
}

func TestWorker_SetParamsOrderedAfterWrites(t *testing.T) {
	dev := &fakeDevice{}
	p := openFake(t, dev, Config{})

	_, err := p.Write([]byte{1})
	require.NoError(t, err)
	require.NoError(t, p.SetParams(context.Background(), SerialParams{Baud: 9600}))

	// the write was handled before the reconfiguration replied
	require.Equal(t, [][]byte{{1}}, dev.written())
}

func TestWorker_ReadTimeoutIsFatal(t *testing.T) {
	dev := &eventDevice{fakeDevice: &fakeDevice{readTimeouts: 1}}
	p := openFake(t, dev, Config{})

	dev.arrive(1, 2, 3)
	_, err := p.Read(make([]byte, 3))
	require.ErrorIs(t, err, ErrTimeout)

	var de *DeviceError
	require.True(t, errors.As(err, &de))
	require.Equal(t, "read", de.Op)
}

func TestWorker_ReadTimeoutRetried(t *testing.T) {
	dev := &eventDevice{fakeDevice: &fakeDevice{readTimeouts: 2}}
	p := openFake(t, dev, Config{ReadRetries: 2})

	dev.arrive(1, 2, 3)
	require.Equal(t, []byte{1, 2, 3}, readN(t, p, 3))
}

func TestWorker_QueueStatusErrorIsTerminal(t *testing.T) {
	statusErr := errors.New("FT_DEVICE_NOT_FOUND")
	dev := &eventDevice{fakeDevice: &fakeDevice{}}
	p := openFake(t, dev, Config{})

	dev.set(func(f *fakeDevice) { f.queueErr = statusErr })
	dev.arrive()

	_, err := p.Read(make([]byte, 1))
	require.ErrorIs(t, err, statusErr)
	require.Eventually(t, func() bool { return dev.closes() == 1 }, time.Second, time.Millisecond)
}

func TestWorker_CancelTwice(t *testing.T) {
	dev := &fakeDevice{}
	cfg := Config{
		Driver:       &fakeDriver{dev: dev},
		Device:       "FT0001",
		PollInterval: time.Hour,
	}.withDefaults()

	opened := make(chan error, 1)
	cmds := newQueue[command]()
	events := newQueue[event]()
	shutdown := make(chan struct{})
	go runWorker(cfg, opened, cmds, events, shutdown)
	require.NoError(t, <-opened)

	require.NoError(t, cmds.Send(cancelCommand))
	_ = cmds.Send(cancelCommand)

	select {
	case <-shutdown:
	case <-time.After(time.Second):
		t.Fatal("worker did not shut down")
	}

	// the worker is gone; cancelling again is a failed send, nothing more
	require.ErrorIs(t, cmds.Send(cancelCommand), ErrDisconnected)
	require.Equal(t, 1, dev.closes())

	_, st := events.TryRecv()
	require.Equal(t, recvClosed, st)
}

func TestWorker_PendingRepliesAnsweredOnExit(t *testing.T) {
	dev := &fakeDevice{}
	cfg := Config{
		Driver:       &fakeDriver{dev: dev},
		Device:       "FT0001",
		PollInterval: time.Hour,
	}.withDefaults()

	opened := make(chan error, 1)
	cmds := newQueue[command]()
	events := newQueue[event]()
	shutdown := make(chan struct{})

	reply := make(chan error, 1)
	require.NoError(t, cmds.Send(cancelCommand))
	require.NoError(t, cmds.Send(command{kind: cmdSetParams, params: DefaultParams(), reply: reply}))

	go runWorker(cfg, opened, cmds, events, shutdown)
	require.NoError(t, <-opened)

	select {
	case err := <-reply:
		require.ErrorIs(t, err, ErrDisconnected)
	case <-time.After(time.Second):
		t.Fatal("pending reply never answered")
	}
	<-shutdown
}

func TestWorker_NoDeviceCallsAfterExit(t *testing.T) {
	dev := &eventDevice{fakeDevice: &fakeDevice{}}
	p := openFake(t, dev, Config{PollInterval: time.Millisecond})

	require.NoError(t, p.Close())
	dev.arrive(1)
	time.Sleep(20 * time.Millisecond)

	dev.mu.Lock()
	defer dev.mu.Unlock()
	require.Equal(t, 1, dev.closeCount)
	require.False(t, dev.usedAfterClose)
}
