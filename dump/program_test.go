package dump_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sergev/usbtool/dump"
)

// image returns n bytes of deterministic data
func image(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*7 + i/251)
	}
	return data
}

func TestProgramPadsLastBlock(t *testing.T) {
	dev, session := newDevice(smallGeometry)
	size := smallGeometry.BlockTransferSize()
	src := image(2*size + size/2)

	var events []dump.Progress
	report, err := dump.Program(session.Chip(0), session.Buffer(), bytes.NewReader(src), collect(&events))
	if err != nil {
		t.Fatalf("Program() returned error: %v", err)
	}
	if report.Blocks != 3 || len(report.Failures) != 0 || report.Truncated {
		t.Errorf("report = %+v, expected 3 clean blocks", report)
	}

	chip := dev.Chips[0]
	for block := 0; block < 2; block++ {
		if !bytes.Equal(chip.Written[block], src[block*size:(block+1)*size]) {
			t.Errorf("block %d was not programmed with its part of the image", block)
		}
	}
	last := chip.Written[2]
	if !bytes.Equal(last[:size/2], src[2*size:]) {
		t.Errorf("block 2 does not start with the image tail")
	}
	if !bytes.Equal(last[size/2:], bytes.Repeat([]byte{0xff}, size-size/2)) {
		t.Errorf("block 2 is not padded with 0xff")
	}
	if _, ok := chip.Written[3]; ok {
		t.Errorf("block 3 was programmed past the end of the image")
	}
	if diff := cmp.Diff(map[int]int{0: 1, 1: 1, 2: 1}, chip.Erased); diff != "" {
		t.Errorf("erase counts mismatch (-want +got):\n%s", diff)
	}
	if n := dev.Count("nand mark"); n != 0 {
		t.Errorf("sent %d marks without WithClearMarks", n)
	}

	if len(events) != 4 || !events[3].Done {
		t.Errorf("progress events = %+v, expected 3 blocks and completion", events)
	}
}

func TestProgramShortImageProgress(t *testing.T) {
	_, session := newDevice(smallGeometry)

	var events []dump.Progress
	report, err := dump.Program(session.Chip(0), session.Buffer(), bytes.NewReader(image(10)), collect(&events))
	if err != nil {
		t.Fatalf("Program() returned error: %v", err)
	}
	if report.Blocks != 1 {
		t.Errorf("processed %d blocks, expected 1", report.Blocks)
	}
	want := []dump.Progress{
		{Block: 0, Total: 4, Percent: 0},
		{Block: 1, Total: 4, Percent: 25, Done: true},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
}

func TestProgramFailures(t *testing.T) {
	size := smallGeometry.BlockTransferSize()

	t.Run("Continue", func(t *testing.T) {
		dev, session := newDevice(smallGeometry)
		dev.Chips[0].Fail[1] = true

		report, err := dump.Program(session.Chip(0), session.Buffer(), bytes.NewReader(image(4*size)))
		if err != nil {
			t.Fatalf("Program() returned error: %v", err)
		}
		want := []*dump.BlockError{
			{Chip: 0, Block: 1, Op: dump.OpErase},
			{Chip: 0, Block: 1, Op: dump.OpWrite},
		}
		if diff := cmp.Diff(want, report.Failures); diff != "" {
			t.Errorf("failures mismatch (-want +got):\n%s", diff)
		}
		if report.Blocks != 4 {
			t.Errorf("processed %d blocks, expected 4", report.Blocks)
		}
		err = report.Err()
		if !errors.Is(err, dump.ErrEraseFailed) || !errors.Is(err, dump.ErrWriteFailed) {
			t.Errorf("Err() = %v, expected erase and write failures", err)
		}
		// The write is attempted even when the erase failed
		if n := dev.Count("nand write 00000001"); n != 1 {
			t.Errorf("sent %d writes to block 1, expected 1", n)
		}
	})

	t.Run("Stop", func(t *testing.T) {
		dev, session := newDevice(smallGeometry)
		dev.Chips[0].Fail[1] = true

		report, err := dump.Program(session.Chip(0), session.Buffer(), bytes.NewReader(image(4*size)),
			dump.WithStopOnFailure(true))
		var berr *dump.BlockError
		if !errors.As(err, &berr) || berr.Block != 1 || berr.Op != dump.OpErase {
			t.Fatalf("Program() error = %v, expected erase failure of block 1", err)
		}
		if report.Blocks != 1 {
			t.Errorf("processed %d blocks, expected 1", report.Blocks)
		}
		if n := dev.Count("nand write 00000001"); n != 0 {
			t.Errorf("wrote block 1 after its erase failed")
		}
	})
}

func TestProgramTruncated(t *testing.T) {
	dev, session := newDevice(smallGeometry)
	size := smallGeometry.BlockTransferSize()

	report, err := dump.Program(session.Chip(0), session.Buffer(), bytes.NewReader(image(5*size)))
	if err != nil {
		t.Fatalf("Program() returned error: %v", err)
	}
	if report.Blocks != 4 || !report.Truncated {
		t.Errorf("report = %+v, expected 4 blocks and truncation", report)
	}
	if n := dev.Count("nand write"); n != 4 {
		t.Errorf("sent %d writes, expected 4", n)
	}
}

func TestProgramClearMarks(t *testing.T) {
	dev, session := newDevice(smallGeometry)
	size := smallGeometry.BlockTransferSize()
	for block := 0; block < 4; block++ {
		dev.Chips[0].Marks[block] = 1
	}

	_, err := dump.Program(session.Chip(0), session.Buffer(), bytes.NewReader(image(2*size)),
		dump.WithClearMarks(true))
	if err != nil {
		t.Fatalf("Program() returned error: %v", err)
	}
	want := map[int]uint32{0: 0, 1: 0, 2: 1, 3: 1}
	if diff := cmp.Diff(want, dev.Chips[0].Marks); diff != "" {
		t.Errorf("marks mismatch (-want +got):\n%s", diff)
	}
}

func TestProgramEmptyImage(t *testing.T) {
	dev, session := newDevice(smallGeometry)

	report, err := dump.Program(session.Chip(0), session.Buffer(), bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("Program() returned error: %v", err)
	}
	if report.Blocks != 0 {
		t.Errorf("processed %d blocks of an empty image", report.Blocks)
	}
	if n := dev.Count("nand erase"); n != 0 {
		t.Errorf("sent %d erases for an empty image", n)
	}
}

func TestErase(t *testing.T) {
	dev, session := newDevice(smallGeometry)
	dev.Chips[0].Status["erase:3"] = -1

	report, err := dump.Erase(session.Chip(0))
	if err != nil {
		t.Fatalf("Erase() returned error: %v", err)
	}
	if report.Blocks != 4 {
		t.Errorf("erased %d blocks, expected 4", report.Blocks)
	}
	want := []*dump.BlockError{{Chip: 0, Block: 3, Op: dump.OpErase}}
	if diff := cmp.Diff(want, report.Failures); diff != "" {
		t.Errorf("failures mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[int]int{0: 1, 1: 1, 2: 1}, dev.Chips[0].Erased); diff != "" {
		t.Errorf("erase counts mismatch (-want +got):\n%s", diff)
	}
}
