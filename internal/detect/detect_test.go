package detect

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		name  string
		image func() []byte
		want  Type
	}{
		{
			name: "ext2",
			image: func() []byte {
				b := make([]byte, 2048)
				binary.LittleEndian.PutUint16(b[1024+0x38:1024+0x3A], extMagic)
				return b
			},
			want: Ext2,
		},
		{
			name: "ext3 via journal feature",
			image: func() []byte {
				b := make([]byte, 2048)
				binary.LittleEndian.PutUint16(b[1024+0x38:1024+0x3A], extMagic)
				binary.LittleEndian.PutUint32(b[1024+0x5C:1024+0x60], 0x0004)
				return b
			},
			want: Ext3,
		},
		{
			name: "ext4 via extents feature",
			image: func() []byte {
				b := make([]byte, 2048)
				binary.LittleEndian.PutUint16(b[1024+0x38:1024+0x3A], extMagic)
				binary.LittleEndian.PutUint32(b[1024+0x60:1024+0x64], 0x0040)
				return b
			},
			want: Ext4,
		},
		{
			name: "MBR",
			image: func() []byte {
				b := make([]byte, 2048)
				b[510], b[511] = 0x55, 0xAA
				return b
			},
			want: MBR,
		},
		{
			name: "GPT",
			image: func() []byte {
				b := make([]byte, 2048)
				copy(b[512:520], "EFI PART")
				return b
			},
			want: GPT,
		},
		{
			name:  "unknown",
			image: func() []byte { return make([]byte, 2048) },
			want:  Unknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Detect(bytes.NewReader(tc.image()))
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if got != tc.want {
				t.Errorf("Detect = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestType_String(t *testing.T) {
	if Ext4.String() != "ext4" {
		t.Errorf("String() = %q", Ext4.String())
	}
	if !Ext4.IsExt() {
		t.Error("IsExt() = false for Ext4")
	}
	if !MBR.IsPartitionTable() {
		t.Error("IsPartitionTable() = false for MBR")
	}
}
