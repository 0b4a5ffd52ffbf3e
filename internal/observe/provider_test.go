package observe

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func TestResource(t *testing.T) {
	res, err := Resource(ProviderConfig{
		ServiceVersion: "1.2.3",
		Attributes:     map[string]string{"oculus.llm.provider": "gemini"},
	})
	if err != nil {
		t.Fatalf("Resource: %v", err)
	}
	want := map[string]string{
		"service.name":        "oculus",
		"service.version":     "1.2.3",
		"oculus.llm.provider": "gemini",
	}
	for k, v := range want {
		got, ok := res.Set().Value(attribute.Key(k))
		if !ok || got.AsString() != v {
			t.Errorf("resource %s = %q, want %q", k, got.AsString(), v)
		}
	}
}

func TestInitProvider_ExportsToPrometheus(t *testing.T) {
	origMP, origTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	reg := prometheus.NewRegistry()
	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceName:    "oculus-test",
		ServiceVersion: "1.2.3",
		Attributes:     map[string]string{"oculus.capture.backend": "ffmpeg"},
		Registerer:     reg,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	}()

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordUtterance(context.Background(), "answered")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var sawUtterances bool
	var info *dto.MetricFamily
	for _, mf := range families {
		switch {
		case strings.HasPrefix(mf.GetName(), "oculus_utterances"):
			sawUtterances = true
		case mf.GetName() == "target_info":
			info = mf
		}
	}
	if !sawUtterances {
		t.Error("utterance counter not exported")
	}
	if info == nil || len(info.GetMetric()) == 0 {
		t.Fatal("target_info not exported")
	}
	labels := map[string]string{}
	for _, lp := range info.GetMetric()[0].GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	for k, v := range map[string]string{
		"service_version":        "1.2.3",
		"oculus_capture_backend": "ffmpeg",
	} {
		if labels[k] != v {
			t.Errorf("target_info %s = %q, want %q", k, labels[k], v)
		}
	}
}
