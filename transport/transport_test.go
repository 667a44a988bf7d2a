package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// limitedChannel accepts at most accept bytes per write and records every write
type limitedChannel struct {
	accept   int
	writes   []int
	data     bytes.Buffer
	readData []byte
	readErr  error
	writeErr error
	failAt   int // fail the write number failAt (1-based), 0 = never
}

func (c *limitedChannel) Write(p []byte) (int, error) {
	c.writes = append(c.writes, len(p))
	if c.failAt > 0 && len(c.writes) == c.failAt {
		return 0, c.writeErr
	}
	n := len(p)
	if c.accept > 0 && n > c.accept {
		n = c.accept
	}
	c.data.Write(p[:n])
	return n, nil
}

func (c *limitedChannel) Read(p []byte) (int, error) {
	if c.readErr != nil {
		return 0, c.readErr
	}
	n := copy(p, c.readData)
	c.readData = c.readData[n:]
	return n, nil
}

func (c *limitedChannel) Close() error {
	return nil
}

func pattern(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i*7 + i>>8)
	}
	return buf
}

func TestSendChunks(t *testing.T) {
	testCases := []struct {
		name       string
		size       int
		chunkSize  int
		wantWrites []int
	}{
		{"Empty", 0, 16, nil},
		{"SingleChunk", 10, 16, []int{10}},
		{"ExactChunks", 32, 16, []int{16, 16}},
		{"Remainder", 35, 16, []int{16, 16, 3}},
		{"DefaultChunkSize", DefaultChunkSize + 1, 0, []int{DefaultChunkSize, 1}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ch := &limitedChannel{}
			payload := pattern(tc.size)
			if err := Send(ch, payload, tc.chunkSize); err != nil {
				t.Fatalf("Send() returned error: %v", err)
			}
			if diff := cmp.Diff(tc.wantWrites, ch.writes); diff != "" {
				t.Errorf("chunk sizes mismatch (-want +got):\n%s", diff)
			}
			if !bytes.Equal(ch.data.Bytes(), payload) {
				t.Errorf("channel received %d bytes, expected payload of %d bytes", ch.data.Len(), len(payload))
			}
		})
	}
}

// Whatever the device accepts per write, the full payload arrives exactly once and in order.
func TestSendPartialAccept(t *testing.T) {
	const chunkSize = 64
	rng := rand.New(rand.NewSource(1))
	for accept := 1; accept <= chunkSize; accept++ {
		size := rng.Intn(5*chunkSize) + 1
		payload := pattern(size)
		ch := &limitedChannel{accept: accept}
		if err := Send(ch, payload, chunkSize); err != nil {
			t.Fatalf("accept=%d: Send() returned error: %v", accept, err)
		}
		if !bytes.Equal(ch.data.Bytes(), payload) {
			t.Fatalf("accept=%d: channel received %d bytes, expected %d", accept, ch.data.Len(), size)
		}
		for i, w := range ch.writes {
			if w > chunkSize {
				t.Fatalf("accept=%d: write %d of %d bytes exceeds chunk size", accept, i, w)
			}
		}
	}
}

func TestSendWriteError(t *testing.T) {
	fault := errors.New("pipe stalled")
	ch := &limitedChannel{failAt: 2, writeErr: fault}
	err := Send(ch, pattern(40), 16)
	if err == nil {
		t.Fatal("Send() succeeded, expected error")
	}
	if !errors.Is(err, ErrChannelWrite) || !errors.Is(err, fault) {
		t.Errorf("error %v should match ErrChannelWrite and the transport fault", err)
	}
	var writeErr *ChannelWriteError
	if !errors.As(err, &writeErr) || writeErr.Offset != 16 {
		t.Errorf("error %#v, expected *ChannelWriteError at offset 16", err)
	}
}

type stuckChannel struct{ limitedChannel }

func (c *stuckChannel) Write(p []byte) (int, error) {
	return 0, nil
}

func TestSendNoProgress(t *testing.T) {
	err := Send(&stuckChannel{}, pattern(10), 16)
	if !errors.Is(err, io.ErrNoProgress) {
		t.Errorf("Send() error = %v, expected io.ErrNoProgress", err)
	}
}

func TestRecv(t *testing.T) {
	ch := &limitedChannel{readData: pattern(20)}
	data, err := Recv(ch, 20)
	if err != nil {
		t.Fatalf("Recv() returned error: %v", err)
	}
	if diff := cmp.Diff(pattern(20), data); diff != "" {
		t.Errorf("Recv() data mismatch (-want +got):\n%s", diff)
	}
}

func TestRecvShort(t *testing.T) {
	ch := &limitedChannel{readData: pattern(3)}
	_, err := Recv(ch, 20)
	var short *ShortReadError
	if !errors.As(err, &short) {
		t.Fatalf("Recv() error = %v, expected *ShortReadError", err)
	}
	if short.Want != 20 || short.Got != 3 {
		t.Errorf("short read = %d/%d, expected 3/20", short.Got, short.Want)
	}
	if !errors.Is(err, ErrShortRead) {
		t.Errorf("error %v does not match ErrShortRead", err)
	}
}

func TestRecvError(t *testing.T) {
	ch := &limitedChannel{readErr: io.ErrUnexpectedEOF}
	_, err := Recv(ch, 2)
	if !errors.Is(err, ErrChannelRead) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Recv() error = %v, expected channel read error", err)
	}
}

func TestOpenUnknownTransport(t *testing.T) {
	_, err := Open("carrier-pigeon", Options{})
	if err == nil {
		t.Fatal("Open() succeeded for unknown transport")
	}
}

func TestRegisteredTransports(t *testing.T) {
	want := []string{"usb", "serial"}
	if diff := cmp.Diff(want, Names()); diff != "" {
		t.Errorf("registered transports mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenAutoErrors(t *testing.T) {
	saved := registeredOpeners
	defer func() { registeredOpeners = saved }()

	notFound := func(opts Options) (Channel, error) {
		return nil, &DeviceNotFoundError{Transport: "fake", VendorID: opts.VendorID, ProductID: opts.ProductID}
	}
	denied := errors.New("access denied")
	claimFails := func(opts Options) (Channel, error) {
		return nil, fmt.Errorf("failed to claim default interface: %w", denied)
	}

	testCases := []struct {
		name     string
		openers  []Opener
		notFound bool
	}{
		{"NoneFound", []Opener{notFound, notFound}, true},
		{"ClaimFailed", []Opener{claimFails, notFound}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			registeredOpeners = nil
			for i, opener := range tc.openers {
				Register(fmt.Sprintf("fake%d", i), opener)
			}
			_, err := Open("auto", Options{VendorID: 0x1234, ProductID: 0x5678})
			if err == nil {
				t.Fatal("Open() succeeded with no device")
			}
			if got := errors.Is(err, ErrDeviceNotFound); got != tc.notFound {
				t.Errorf("errors.Is(%v, ErrDeviceNotFound) = %v, expected %v", err, got, tc.notFound)
			}
			if !tc.notFound && !errors.Is(err, denied) {
				t.Errorf("error %v lost the claim failure", err)
			}
		})
	}
}
