package blockdev

import "testing"

func TestMemDeviceWriteThenReadRoundTrips(t *testing.T) {
	dev := NewMemDevice()
	var payload [SectorSize]byte
	copy(payload[:], []byte("hello sector"))

	wTok, err := dev.WriteSector(5, payload)
	if err != nil {
		t.Fatalf("WriteSector: %v", err)
	}
	c, ok := dev.Poll()
	if !ok || c.Token != wTok || c.Status != StatusOK {
		t.Fatalf("unexpected write completion: %+v ok=%v", c, ok)
	}

	rTok, err := dev.ReadSector(5)
	if err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	c, ok = dev.Poll()
	if !ok || c.Token != rTok {
		t.Fatalf("unexpected read completion: %+v ok=%v", c, ok)
	}
	if c.Buffer != payload {
		t.Fatalf("read back %v, want %v", c.Buffer, payload)
	}
}

func TestMemDevicePollEmptyReportsFalse(t *testing.T) {
	dev := NewMemDevice()
	if _, ok := dev.Poll(); ok {
		t.Fatal("expected no completion on an idle device")
	}
}

func TestMemDeviceReadUnwrittenSectorIsZeroed(t *testing.T) {
	dev := NewMemDevice()
	if _, err := dev.ReadSector(42); err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	c, ok := dev.Poll()
	if !ok {
		t.Fatal("expected a completion")
	}
	var zero [SectorSize]byte
	if c.Buffer != zero {
		t.Fatalf("expected zeroed sector, got %v", c.Buffer)
	}
}
