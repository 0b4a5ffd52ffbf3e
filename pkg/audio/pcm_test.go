package audio_test

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/oculus/pkg/audio"
)

func TestEncodeWAV_Header(t *testing.T) {
	pcm := make([]byte, 320)
	wav := audio.EncodeWAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Error("missing RIFF/WAVE/data markers")
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 32000 {
		t.Errorf("byte rate = %d, want 32000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
}

func TestRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
		want    float64
	}{
		{"silence", []int16{0, 0, 0, 0}, 0},
		{"constant", []int16{1000, -1000, 1000, -1000}, 1000},
		{"empty", nil, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := audio.RMS(audio.Int16ToBytes(tc.samples))
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("RMS = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDurationAndBytesFor(t *testing.T) {
	pcm := make([]byte, audio.BytesFor(250*time.Millisecond, 24000, 1))
	if len(pcm) != 12000 {
		t.Fatalf("BytesFor = %d, want 12000", len(pcm))
	}
	if got := audio.Duration(pcm, 24000, 1); got != 250*time.Millisecond {
		t.Errorf("Duration = %v, want 250ms", got)
	}
	if got := audio.Duration(pcm, 0, 1); got != 0 {
		t.Errorf("Duration with zero rate = %v, want 0", got)
	}
}

func TestToFloat32Mono(t *testing.T) {
	mono := audio.ToFloat32Mono(audio.Int16ToBytes([]int16{16384, -32768}), 1)
	if mono[0] != 0.5 || mono[1] != -1 {
		t.Errorf("mono = %v, want [0.5 -1]", mono)
	}
	stereo := audio.ToFloat32Mono(audio.Int16ToBytes([]int16{16384, 0}), 2)
	if len(stereo) != 1 || stereo[0] != 0.25 {
		t.Errorf("stereo downmix = %v, want [0.25]", stereo)
	}
}

func TestInt16RoundTrip(t *testing.T) {
	in := []int16{-32768, -1, 0, 1, 32767}
	out := make([]int16, len(in))
	if n := audio.BytesToInt16(out, audio.Int16ToBytes(in)); n != len(in) {
		t.Fatalf("n = %d, want %d", n, len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d = %d, want %d", i, out[i], in[i])
		}
	}
}
