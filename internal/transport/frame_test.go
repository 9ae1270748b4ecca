package transport

import (
	"bytes"
	"testing"

	"zigbee-ledfx/internal/zcl"
)

func TestEncodeFrameManufacturerSpecific(t *testing.T) {
	h := NewHeader(zcl.FrameTypeGlobal, 0x1234, 7, zcl.FoundationWriteAttributes)
	payload := EncodeWriteAttributes([]WriteRecord{{AttrID: 0xF000, DataType: zcl.TypeUint8, Value: []byte{0x02}}})

	got := EncodeFrame(h, payload)
	want := []byte{0x04, 0x34, 0x12, 0x07, 0x02, 0x00, 0xF0, 0x20, 0x02}
	if !bytes.Equal(got, want) {
		t.Fatalf("frame = % X, want % X", got, want)
	}

	dh, dp, err := DecodeFrame(got)
	if err != nil {
		t.Fatal(err)
	}
	if !dh.ManufacturerSpecific() || dh.Manufacturer != 0x1234 {
		t.Errorf("header = %+v, want manufacturer 0x1234", dh)
	}
	if dh.Seq != 7 || dh.Command != zcl.FoundationWriteAttributes {
		t.Errorf("header = %+v", dh)
	}
	if !bytes.Equal(dp, payload) {
		t.Errorf("payload = % X, want % X", dp, payload)
	}
}

func TestEncodeFrameStandard(t *testing.T) {
	h := NewHeader(zcl.FrameTypeCluster, 0, 1, 0x01)
	got := EncodeFrame(h, nil)
	if !bytes.Equal(got, []byte{0x01, 0x01, 0x01}) {
		t.Fatalf("frame = % X", got)
	}
	dh, _, err := DecodeFrame(got)
	if err != nil {
		t.Fatal(err)
	}
	if dh.ManufacturerSpecific() || !dh.ClusterSpecific() {
		t.Errorf("header = %+v", dh)
	}
}

func TestDecodeFrameTruncated(t *testing.T) {
	for _, data := range [][]byte{{0x00}, {0x04, 0x34, 0x12}} {
		if _, _, err := DecodeFrame(data); err == nil {
			t.Errorf("DecodeFrame(% X) should fail", data)
		}
	}
}

func TestParseWriteAttributes(t *testing.T) {
	data := EncodeWriteAttributes([]WriteRecord{
		{AttrID: 0xF001, DataType: zcl.TypeUint8, Value: []byte{0x80}},
		{AttrID: 0x0011, DataType: zcl.TypeUint8, Value: []byte{0xFE}},
	})
	records, err := ParseWriteAttributes(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].AttrID != 0xF001 || records[0].Value[0] != 0x80 {
		t.Errorf("record 0 = %+v", records[0])
	}

	if _, err := ParseWriteAttributes([]byte{0x00, 0xF0, 0x21, 0x01}); err == nil {
		t.Error("expected error for truncated uint16 value")
	}
}

func TestWriteAttributesResponse(t *testing.T) {
	ok := EncodeWriteAttributesResponse(nil)
	failed, err := ParseWriteAttributesResponse(ok)
	if err != nil || len(failed) != 0 {
		t.Fatalf("success response: failed=%v err=%v", failed, err)
	}

	data := EncodeWriteAttributesResponse([]AttributeRecord{{AttrID: 0xF000, Status: zcl.ZCLStatusInvalidValue}})
	failed, err = ParseWriteAttributesResponse(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].AttrID != 0xF000 || failed[0].Status != zcl.ZCLStatusInvalidValue {
		t.Errorf("failed = %+v", failed)
	}
}

func TestConfigureReportingChangeField(t *testing.T) {
	// Discrete types omit the reportable change.
	onOff := EncodeConfigureReporting(ReportingRecord{AttrID: 0, DataType: zcl.TypeBool, MaxInterval: 3600})
	if len(onOff) != 8 {
		t.Errorf("bool record length = %d, want 8", len(onOff))
	}

	level := EncodeConfigureReporting(ReportingRecord{AttrID: 0, DataType: zcl.TypeUint8, MinInterval: 10, MaxInterval: 3600, ReportChange: []byte{1}})
	if len(level) != 9 {
		t.Errorf("uint8 record length = %d, want 9", len(level))
	}

	records, err := ParseConfigureReporting(append(onOff, level...))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[1].MinInterval != 10 || records[1].MaxInterval != 3600 || !bytes.Equal(records[1].ReportChange, []byte{1}) {
		t.Errorf("level record = %+v", records[1])
	}
	if records[0].ReportChange != nil {
		t.Errorf("bool record change = %v, want nil", records[0].ReportChange)
	}
}

func TestReadAttributesResponse(t *testing.T) {
	data := EncodeReadAttributesResponse([]AttributeRecord{
		{AttrID: 0xF000, DataType: zcl.TypeUint8, Value: []byte{0x03}},
		{AttrID: 0xF004, Status: zcl.ZCLStatusUnsupportedAttr},
		{AttrID: 0x0005, DataType: zcl.TypeCharStr, Value: []byte{0x03, 'L', 'E', 'D'}},
	})
	records := ParseReadAttributesResponse(data)
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0].Value[0] != 0x03 {
		t.Errorf("record 0 = %+v", records[0])
	}
	if records[1].Status != zcl.ZCLStatusUnsupportedAttr || records[1].Value != nil {
		t.Errorf("record 1 = %+v", records[1])
	}
	if string(records[2].Value[1:]) != "LED" {
		t.Errorf("record 2 = %+v", records[2])
	}
}

func TestReadAttributesResponseUnknownTypeStops(t *testing.T) {
	data := []byte{0x00, 0x00, 0x00, 0x48, 0x01, 0x02, 0x01, 0x00, 0x00, 0x20, 0x05}
	records := ParseReadAttributesResponse(data)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Value != nil {
		t.Errorf("unknown type should carry no value")
	}
}

func TestReportAttributes(t *testing.T) {
	data := EncodeReportAttributes([]AttributeRecord{
		{AttrID: 0x0003, DataType: zcl.TypeUint16, Value: []byte{0x10, 0x27}},
		{AttrID: 0x0004, DataType: zcl.TypeUint16, Value: []byte{0x20, 0x4E}},
	})
	records, err := ParseReportAttributes(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[1].AttrID != 0x0004 {
		t.Fatalf("records = %+v", records)
	}
}

func TestReadAttributesPayload(t *testing.T) {
	ids, err := ParseReadAttributes(EncodeReadAttributes([]uint16{0xF000, 0xF001}))
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != 0xF000 || ids[1] != 0xF001 {
		t.Errorf("ids = %v", ids)
	}
	if _, err := ParseReadAttributes([]byte{0x00}); err == nil {
		t.Error("expected error for odd payload")
	}
}

func TestDefaultResponse(t *testing.T) {
	cmd, status, err := ParseDefaultResponse(EncodeDefaultResponse(0x07, zcl.ZCLStatusUnsupportedCmd))
	if err != nil {
		t.Fatal(err)
	}
	if cmd != 0x07 || status != zcl.ZCLStatusUnsupportedCmd {
		t.Errorf("got 0x%02X/0x%02X", cmd, status)
	}
}

func TestParseIEEE(t *testing.T) {
	for _, in := range []string{"00:12:4b:00:1c:aa:bb:cc", "0x00124b001caabbcc", "00124B001CAABBCC"} {
		addr, err := ParseIEEE(in)
		if err != nil {
			t.Fatalf("ParseIEEE(%q): %v", in, err)
		}
		if got := FormatIEEE(addr); got != "0x00124b001caabbcc" {
			t.Errorf("FormatIEEE = %q", got)
		}
	}
	if _, err := ParseIEEE("0x1234"); err == nil {
		t.Error("expected error for short address")
	}
}
