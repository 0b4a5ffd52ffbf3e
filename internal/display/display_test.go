package display

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/oculus/internal/conversation"
	"github.com/MrWong99/oculus/pkg/frame"
)

func rgbFrame(seq uint64, w, h int) *frame.Frame {
	data := make([]byte, w*h*3)
	for i := 0; i < len(data); i += 3 {
		data[i] = 0xff
	}
	return &frame.Frame{Data: data, Format: frame.FormatRGB24, Width: w, Height: h, Seq: seq}
}

func newModel(buf *frame.Buffer, h *conversation.History) *model {
	return NewTerminal(buf, h, WithColumns(8)).model()
}

func TestPreviewSize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name             string
		w, h, cols, max  int
		wantCols, wantRs int
	}{
		{"4:3 at 80 cols", 640, 480, 80, 0, 80, 30},
		{"square", 100, 100, 10, 0, 10, 5},
		{"height capped", 640, 480, 80, 15, 40, 15},
		{"tiny", 10, 1, 4, 0, 4, 1},
		{"empty image", 0, 0, 80, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cols, rows := previewSize(tt.w, tt.h, tt.cols, tt.max)
			if cols != tt.wantCols || rows != tt.wantRs {
				t.Errorf("previewSize(%d, %d, %d, %d) = %d, %d; want %d, %d",
					tt.w, tt.h, tt.cols, tt.max, cols, rows, tt.wantCols, tt.wantRs)
			}
		})
	}
}

func TestRenderPreview(t *testing.T) {
	t.Parallel()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := range 4 {
		for x := range 4 {
			img.Set(x, y, color.RGBA{R: 0xff, A: 0xff})
		}
	}
	out := renderPreview(img, 4, 0)
	if got := strings.Count(out, upperHalfBlock); got != 8 {
		t.Errorf("half blocks: got %d, want 8", got)
	}
	if got := strings.Count(out, "\n"); got != 1 {
		t.Errorf("line breaks: got %d, want 1", got)
	}
}

func TestModel_QuitKeys(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		key  tea.KeyMsg
		quit bool
	}{
		{"esc", tea.KeyMsg{Type: tea.KeyEsc}, true},
		{"q", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}, true},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}, true},
		{"other rune", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}}, false},
		{"enter", tea.KeyMsg{Type: tea.KeyEnter}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newModel(frame.NewBuffer(), &conversation.History{})
			_, cmd := m.Update(tt.key)
			if !tt.quit {
				if cmd != nil {
					t.Errorf("unexpected command for %s", tt.name)
				}
				return
			}
			if cmd == nil {
				t.Fatal("want a quit command")
			}
			if _, ok := cmd().(tea.QuitMsg); !ok {
				t.Errorf("command did not quit")
			}
		})
	}
}

func TestModel_View(t *testing.T) {
	t.Parallel()
	buf := frame.NewBuffer()
	var h conversation.History
	m := newModel(buf, &h)
	m.Init()

	if v := m.View(); !strings.Contains(v, "waiting for camera") {
		t.Errorf("view without frame: %q", v)
	}

	buf.Write(rgbFrame(1, 16, 12))
	m.Update(tickMsg(time.Now()))
	if v := m.View(); !strings.Contains(v, upperHalfBlock) {
		t.Errorf("view should contain the preview: %q", v)
	}

	h.AppendPair("what color is the sky?", "Blue, unless you are indoors.")
	v := m.View()
	if !strings.Contains(v, "you: what color is the sky?") || !strings.Contains(v, "assistant: Blue, unless you are indoors.") {
		t.Errorf("view should contain the last exchange: %q", v)
	}
}

func TestModel_BadFrame(t *testing.T) {
	t.Parallel()
	buf := frame.NewBuffer()
	buf.Write(&frame.Frame{Format: frame.FormatRGB24, Width: 4, Height: 4, Seq: 1})
	m := newModel(buf, &conversation.History{})
	m.Init()
	if v := m.View(); !strings.Contains(v, "frame not viewable") {
		t.Errorf("view: %q", v)
	}

	buf.Write(rgbFrame(2, 4, 4))
	m.Update(tickMsg(time.Now()))
	if v := m.View(); strings.Contains(v, "frame not viewable") {
		t.Errorf("view should recover with a good frame: %q", v)
	}
}

func TestModel_Busy(t *testing.T) {
	t.Parallel()
	busy := true
	m := NewTerminal(frame.NewBuffer(), &conversation.History{}, WithBusy(func() bool { return busy })).model()
	if !strings.Contains(m.View(), "thinking") {
		t.Error("busy view should say so")
	}
	busy = false
	if strings.Contains(m.View(), "thinking") {
		t.Error("idle view should not say thinking")
	}
}

func TestLastExchange(t *testing.T) {
	t.Parallel()
	var h conversation.History
	if q, a := lastExchange(h.Turns()); q != "" || a != "" {
		t.Errorf("empty history: got %q, %q", q, a)
	}
	h.AppendPair("q1", "a1")
	h.AppendPair("q2", "a2")
	if q, a := lastExchange(h.Turns()); q != "q2" || a != "a2" {
		t.Errorf("got %q, %q; want q2, a2", q, a)
	}
}

func TestTerminal_RunStopsOnContext(t *testing.T) {
	t.Parallel()
	term := NewTerminal(frame.NewBuffer(), &conversation.History{}, WithIO(nil, io.Discard))
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- term.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run: got %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHeadless_Run(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := (Headless{}).Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run: got %v", err)
	}
}
