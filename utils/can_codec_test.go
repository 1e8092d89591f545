package utils

import (
	"math"
	"strings"
	"testing"
)

const testMap = `direction,frame_id,frame_name,cycle_ms,dlc,signal_name,start_bit,bit_length,endianness,signed,factor,offset,min,max,default,unit,comment
rx,0x310,BOOST_SENSE,10,5,boost_voltage_v,0,16,little,false,0.01,0,0,655.35,0,V,boost output
rx,0x310,BOOST_SENSE,10,5,source_present,32,1,little,false,1,0,0,1,0,,presence
tx,0x320,REGULATOR_STATUS,10,7,state,0,4,little,false,1,0,0,15,0,,state code
tx,0x320,REGULATOR_STATUS,10,7,error_v,32,16,little,true,0.001,0,-32.768,32.767,0,V,error
`

func loadTestMap(t *testing.T) *CANMap {
	t.Helper()
	m, err := ReadCANMap(strings.NewReader(testMap))
	if err != nil {
		t.Fatalf("ReadCANMap: %v", err)
	}
	return m
}

func TestReadCANMap(t *testing.T) {
	m := loadTestMap(t)
	fd, err := m.FrameByName("BOOST_SENSE")
	if err != nil {
		t.Fatal(err)
	}
	if fd.ID != 0x310 || fd.DLC != 5 || fd.Direction != "rx" || len(fd.Signals) != 2 {
		t.Errorf("unexpected frame %+v", fd)
	}
	if _, ok := fd.Signal("source_present"); !ok {
		t.Error("source_present signal missing")
	}
	if got := m.FrameNames(); len(got) != 2 || got[0] != "BOOST_SENSE" {
		t.Errorf("FrameNames = %v", got)
	}
	if _, err := m.FrameByID(0x999); err == nil {
		t.Error("expected unknown frame id error")
	}
}

func TestReadCANMapRejectsOverrun(t *testing.T) {
	bad := strings.Replace(testMap, "rx,0x310,BOOST_SENSE,10,5,source_present,32,1", "rx,0x310,BOOST_SENSE,10,5,source_present,40,1", 1)
	if _, err := ReadCANMap(strings.NewReader(bad)); err == nil {
		t.Error("expected overrun error")
	}
}

func TestEncodeDecodeSignedSignal(t *testing.T) {
	m := loadTestMap(t)
	f, err := m.EncodeEinrideFrame("REGULATOR_STATUS", map[string]float64{
		"state":   6,
		"error_v": -0.25,
	})
	if err != nil {
		t.Fatal(err)
	}
	if f.ID != 0x320 || f.Length != 7 {
		t.Fatalf("frame id=0x%X len=%d", f.ID, f.Length)
	}
	if f.Data[0] != 6 {
		t.Errorf("state byte = %d", f.Data[0])
	}
	// -250 as int16 little endian
	if f.Data[4] != 0x06 || f.Data[5] != 0xFF {
		t.Errorf("error_v bytes = % X", f.Data[4:6])
	}

	got, err := m.DecodeEinrideFrame(f)
	if err != nil {
		t.Fatal(err)
	}
	if got["state"] != 6 || math.Abs(got["error_v"]+0.25) > 1e-9 {
		t.Errorf("decoded %v", got)
	}
}

func TestEncodeClampsToSignalRange(t *testing.T) {
	m := loadTestMap(t)
	payload, _, err := m.EncodeFrame("REGULATOR_STATUS", map[string]float64{"state": 99, "error_v": 100})
	if err != nil {
		t.Fatal(err)
	}
	vals, err := m.DecodeFrame(0x320, payload)
	if err != nil {
		t.Fatal(err)
	}
	if vals["state"] != 15 || math.Abs(vals["error_v"]-32.767) > 1e-9 {
		t.Errorf("decoded %v", vals)
	}
}

func TestDecodeShortPayload(t *testing.T) {
	m := loadTestMap(t)
	if _, err := m.DecodeFrame(0x310, []byte{1, 2}); err == nil {
		t.Error("expected DLC error")
	}
}
