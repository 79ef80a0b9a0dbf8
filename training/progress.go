package training

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/PotapenkoOleg/PyTorch/layers"
)

// EpochReport summarizes one completed epoch.
type EpochReport struct {
	Epoch        int // 1-based
	TotalEpochs  int
	TrainLoss    float64 // sample-weighted mean over the epoch
	TestLoss     float64
	TestAccuracy float64 // fraction in [0, 1]
	Evaluated    bool    // false when no test loader was configured
	LearningRate float64
	Duration     time.Duration
}

// Reporter receives one report per epoch. It is the training loop's only
// view of the outside world.
type Reporter interface {
	ReportEpoch(report EpochReport)
}

// LogReporter writes one key=value line per epoch.
type LogReporter struct {
	logger *log.Logger
}

// NewLogReporter creates a reporter; a nil logger uses log.Default().
func NewLogReporter(logger *log.Logger) *LogReporter {
	if logger == nil {
		logger = log.Default()
	}
	return &LogReporter{logger: logger}
}

func (r *LogReporter) ReportEpoch(report EpochReport) {
	line := fmt.Sprintf("epoch=%d/%d train_loss=%.4f lr=%.5f",
		report.Epoch, report.TotalEpochs, report.TrainLoss, report.LearningRate)
	if report.Evaluated {
		line += fmt.Sprintf(" test_loss=%.4f test_acc=%.2f%%", report.TestLoss, report.TestAccuracy*100)
	}
	line += fmt.Sprintf(" elapsed=%s", report.Duration.Round(time.Millisecond))
	r.logger.Print(line)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(EpochReport)

func (f ReporterFunc) ReportEpoch(report EpochReport) { f(report) }

// ProgressBar provides PyTorch-style training progress visualization
type ProgressBar struct {
	out         io.Writer
	description string
	total       int
	current     int
	startTime   time.Time
	width       int
	metrics     map[string]float64
}

// NewProgressBar creates a new progress bar drawing to out
func NewProgressBar(out io.Writer, description string, total int) *ProgressBar {
	return &ProgressBar{
		out:         out,
		description: description,
		total:       total,
		startTime:   time.Now(),
		width:       40, // Character width of progress bar
		metrics:     make(map[string]float64),
	}
}

// Update advances the progress bar
func (pb *ProgressBar) Update(step int, metrics map[string]float64) {
	pb.current = step
	for k, v := range metrics {
		pb.metrics[k] = v
	}
	pb.render()
}

// Finish completes the progress bar
func (pb *ProgressBar) Finish() {
	pb.current = pb.total
	pb.render()
	fmt.Fprintln(pb.out)
}

// render draws the progress bar
func (pb *ProgressBar) render() {
	percentage := 1.0
	if pb.total > 0 {
		percentage = float64(pb.current) / float64(pb.total)
	}
	if percentage > 1.0 {
		percentage = 1.0
	}

	filled := int(percentage * float64(pb.width))
	bar := strings.Repeat("█", filled) + strings.Repeat(" ", pb.width-filled)

	elapsed := time.Since(pb.startTime)
	var eta time.Duration
	if pb.current > 0 && percentage > 0 {
		eta = time.Duration(float64(elapsed)/percentage) - elapsed
	}

	line := fmt.Sprintf("\r%s: %3.0f%%|%s| %d/%d [%s<%s",
		pb.description, percentage*100, bar, pb.current, pb.total,
		formatDuration(elapsed), formatDuration(eta))

	// sorted so the line does not jitter between redraws
	keys := make([]string, 0, len(pb.metrics))
	for k := range pb.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := pb.metrics[key]
		if strings.Contains(key, "acc") {
			line += fmt.Sprintf(", %s=%.2f%%", key, value*100)
		} else {
			line += fmt.Sprintf(", %s=%.3f", key, value)
		}
	}
	line += "]"

	fmt.Fprint(pb.out, line)
}

// formatDuration formats duration as MM:SS
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// ModelArchitecturePrinter prints PyTorch-style model architecture
type ModelArchitecturePrinter struct {
	modelName string
}

// NewModelArchitecturePrinter creates a new model architecture printer
func NewModelArchitecturePrinter(modelName string) *ModelArchitecturePrinter {
	return &ModelArchitecturePrinter{
		modelName: modelName,
	}
}

// PrintArchitecture prints the model architecture in PyTorch style
func (p *ModelArchitecturePrinter) PrintArchitecture(w io.Writer, modelSpec *layers.ModelSpec) {
	fmt.Fprintf(w, "Model Architecture:\n")
	fmt.Fprintf(w, "%s(\n", p.modelName)

	for i, layer := range modelSpec.Layers {
		fmt.Fprintf(w, "  %s\n", p.formatLayer(layer, i))
	}

	fmt.Fprintf(w, ")\n\n")

	fmt.Fprintf(w, "Total parameters: %s\n", formatParameterCount(modelSpec.TotalParameters))
	fmt.Fprintf(w, "Params size (KB): %.3f\n\n", float64(modelSpec.TotalParameters*8)/1024) // 8 bytes per float64
}

// formatLayer formats a single layer for display
func (p *ModelArchitecturePrinter) formatLayer(layer layers.LayerSpec, index int) string {
	name := layer.Name
	if name == "" {
		name = fmt.Sprintf("%d", index)
	}
	switch layer.Type {
	case layers.Dense:
		return fmt.Sprintf("(%s): Linear(in_features=%d, out_features=%d, bias=true)",
			name, layer.InputSize, layer.OutputSize)
	case layers.LogSoftmax:
		return fmt.Sprintf("(%s): LogSoftmax(dim=1)", name)
	default:
		return fmt.Sprintf("(%s): %s()", name, layer.Type.String())
	}
}

// formatParameterCount formats parameter count with K/M suffixes
func formatParameterCount(count int64) string {
	if count >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(count)/1000000.0)
	} else if count >= 1000 {
		return fmt.Sprintf("%.1fK", float64(count)/1000.0)
	}
	return fmt.Sprintf("%d", count)
}
