package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/MrWong99/oculus/internal/config"
	"github.com/MrWong99/oculus/pkg/audio"
	"github.com/MrWong99/oculus/pkg/frame"
	"github.com/MrWong99/oculus/pkg/video"
)

// micCheckDuration is how much audio -check records.
const micCheckDuration = time.Second

// runCheck opens the camera and the microphone once each, reports what they
// delivered and exits.
func runCheck(ctx context.Context, cfg *config.Config, reg *config.Registry) int {
	status := 0

	cam, err := reg.CreateVideo(cfg.Capture)
	if err == nil {
		var f *frame.Frame
		f, err = checkCamera(ctx, cam, cfg.Capture.FirstFrameTimeout, cfg.Capture.RetryBackoff)
		if err == nil {
			w, h := frameSize(f)
			fmt.Fprintf(os.Stdout, "camera %s (%s): %dx%d %s frame, %d bytes\n",
				cfg.Capture.Device, cfg.Capture.Backend, w, h, f.Format, len(f.Data))
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "camera: %v\n", err)
		status = 1
	}

	dev, err := reg.CreateAudio(cfg.Audio)
	if err != nil {
		fmt.Fprintf(os.Stderr, "microphone: %v\n", err)
		return 1
	}
	defer dev.Close()

	format := audio.Format{SampleRate: cfg.Audio.InputSampleRate, Channels: 1}
	rms, err := checkMicrophone(ctx, dev, format, cfg.Audio.FramesPerBuffer, micCheckDuration)
	if err != nil {
		fmt.Fprintf(os.Stderr, "microphone: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "microphone %s: %s of audio, RMS %.1f (energy threshold %.0f)\n",
		format, micCheckDuration, rms, cfg.Listener.EnergyThreshold)
	return status
}

// checkCamera opens dev and waits up to timeout for one frame. Transient
// read failures are retried after backoff.
func checkCamera(ctx context.Context, dev video.Device, timeout, backoff time.Duration) (*frame.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := dev.Open(ctx); err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer dev.Close()

	for {
		f, err := dev.Read(ctx)
		switch {
		case err == nil && f != nil:
			return f, nil
		case errors.Is(err, video.ErrClosed):
			return nil, err
		case ctx.Err() != nil:
			return nil, fmt.Errorf("no frame within %s: %w", timeout, ctx.Err())
		}
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
	}
}

// checkMicrophone records d of audio from dev and returns its RMS level.
func checkMicrophone(ctx context.Context, dev audio.Device, format audio.Format, framesPerBuffer int, d time.Duration) (float64, error) {
	in, err := dev.OpenInput(ctx, format, framesPerBuffer)
	if err != nil {
		return 0, fmt.Errorf("open: %w", err)
	}
	defer in.Close()

	conv := audio.Converter{Target: format}
	var (
		pcm []byte
		got time.Duration
	)
	for got < d {
		fr, err := in.Read(ctx)
		if err != nil {
			return 0, fmt.Errorf("read: %w", err)
		}
		fr = conv.Convert(fr)
		pcm = append(pcm, fr.Data...)
		got += fr.Duration()
	}
	return audio.RMS(pcm), nil
}

// frameSize returns the frame dimensions, decoding the image when the
// producer left them unset.
func frameSize(f *frame.Frame) (int, int) {
	if f.Width > 0 && f.Height > 0 {
		return f.Width, f.Height
	}
	img, err := f.Image()
	if err != nil {
		return 0, 0
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}
