package training

import (
	"bytes"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/PotapenkoOleg/PyTorch/layers"
)

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewLogReporter(log.New(&buf, "", 0))

	reporter.ReportEpoch(EpochReport{
		Epoch:        2,
		TotalEpochs:  10,
		TrainLoss:    0.4321,
		LearningRate: 0.1,
		Duration:     1500 * time.Millisecond,
	})
	line := buf.String()
	for _, want := range []string{"epoch=2/10", "train_loss=0.4321", "lr=0.10000", "elapsed=1.5s"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, "test_loss") {
		t.Errorf("unevaluated epoch should not report test loss: %q", line)
	}

	buf.Reset()
	reporter.ReportEpoch(EpochReport{
		Epoch:        3,
		TotalEpochs:  10,
		TrainLoss:    0.3,
		TestLoss:     0.35,
		TestAccuracy: 0.9167,
		Evaluated:    true,
	})
	line = buf.String()
	for _, want := range []string{"test_loss=0.3500", "test_acc=91.67%"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in %q", want, line)
		}
	}
}

func TestReporterFunc(t *testing.T) {
	var got []int
	var r Reporter = ReporterFunc(func(report EpochReport) {
		got = append(got, report.Epoch)
	})
	r.ReportEpoch(EpochReport{Epoch: 1})
	r.ReportEpoch(EpochReport{Epoch: 2})
	if len(got) != 2 || got[1] != 2 {
		t.Errorf("unexpected calls %v", got)
	}
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	pb := NewProgressBar(&buf, "Epoch 1", 4)
	pb.Update(2, map[string]float64{"loss": 0.5, "acc": 0.75})
	pb.Finish()

	out := buf.String()
	for _, want := range []string{"Epoch 1", "50%", "4/4", "acc=75.00%, loss=0.500"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("Finish should end the line")
	}
}

func TestModelArchitecturePrinter(t *testing.T) {
	spec, err := layers.NewMLPSpec(4, []int{16}, 3, layers.ActivationReLU, layers.OutputLogProbs)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	NewModelArchitecturePrinter("IrisMLP").PrintArchitecture(&buf, spec)

	out := buf.String()
	for _, want := range []string{
		"IrisMLP(",
		"Linear(in_features=4, out_features=16, bias=true)",
		"Linear(in_features=16, out_features=3, bias=true)",
		"LogSoftmax(dim=1)",
		"Total parameters: 131",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestFormatHelpers(t *testing.T) {
	tests := []struct {
		count int64
		want  string
	}{
		{131, "131"},
		{2500, "2.5K"},
		{3200000, "3.2M"},
	}
	for _, tt := range tests {
		if got := formatParameterCount(tt.count); got != tt.want {
			t.Errorf("formatParameterCount(%d) = %s, expected %s", tt.count, got, tt.want)
		}
	}
	if got := formatDuration(75 * time.Second); got != "01:15" {
		t.Errorf("formatDuration = %s, expected 01:15", got)
	}
}
