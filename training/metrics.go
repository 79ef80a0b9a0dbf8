package training

import (
	"fmt"
	"math"

	"github.com/PotapenkoOleg/PyTorch/tensor"
	"gonum.org/v1/gonum/floats"
)

// MetricType represents different evaluation metrics
type MetricType int

const (
	// Per-class averages
	MacroPrecision MetricType = iota
	MacroRecall
	MacroF1

	// Pooled over all classes
	MicroPrecision
	MicroRecall
	MicroF1
)

func (mt MetricType) String() string {
	switch mt {
	case MacroPrecision:
		return "MacroPrecision"
	case MacroRecall:
		return "MacroRecall"
	case MacroF1:
		return "MacroF1"
	case MicroPrecision:
		return "MicroPrecision"
	case MicroRecall:
		return "MicroRecall"
	case MicroF1:
		return "MicroF1"
	default:
		return fmt.Sprintf("Unknown(%d)", int(mt))
	}
}

// ConfusionMatrix represents a confusion matrix for classification tasks
type ConfusionMatrix struct {
	NumClasses   int
	Matrix       [][]int // [true_class][predicted_class]
	TotalSamples int
}

// NewConfusionMatrix creates a new confusion matrix
func NewConfusionMatrix(numClasses int) *ConfusionMatrix {
	matrix := make([][]int, numClasses)
	for i := range matrix {
		matrix[i] = make([]int, numClasses)
	}

	return &ConfusionMatrix{
		NumClasses: numClasses,
		Matrix:     matrix,
	}
}

// Reset clears the confusion matrix
func (cm *ConfusionMatrix) Reset() {
	for i := range cm.Matrix {
		for j := range cm.Matrix[i] {
			cm.Matrix[i][j] = 0
		}
	}
	cm.TotalSamples = 0
}

// Update records one predicted class per true label.
func (cm *ConfusionMatrix) Update(predicted []int, trueLabels []int32) error {
	if len(predicted) != len(trueLabels) {
		return fmt.Errorf("predictions length mismatch: expected %d, got %d", len(trueLabels), len(predicted))
	}
	for i, p := range predicted {
		trueClass := int(trueLabels[i])
		if trueClass < 0 || trueClass >= cm.NumClasses {
			return fmt.Errorf("label %d at index %d out of range [0, %d)", trueClass, i, cm.NumClasses)
		}
		if p < 0 || p >= cm.NumClasses {
			return fmt.Errorf("prediction %d at index %d out of range [0, %d)", p, i, cm.NumClasses)
		}
		cm.Matrix[trueClass][p]++
		cm.TotalSamples++
	}
	return nil
}

// UpdateFromOutput takes the arg-max of a [B, classes] score tensor and records
// it against labels.
func (cm *ConfusionMatrix) UpdateFromOutput(output, labels *tensor.Tensor) error {
	predicted, err := tensor.ArgMax(output)
	if err != nil {
		return err
	}
	trueLabels, err := labels.GetInt32Data()
	if err != nil {
		return err
	}
	return cm.Update(predicted, trueLabels)
}

// GetMetric calculates an evaluation metric from the current counts
func (cm *ConfusionMatrix) GetMetric(metric MetricType) float64 {
	switch metric {
	case MacroPrecision:
		return cm.macroAverage(cm.columnTotal)
	case MacroRecall:
		return cm.macroAverage(cm.rowTotal)
	case MacroF1:
		return harmonicMean(cm.GetMetric(MacroPrecision), cm.GetMetric(MacroRecall))
	case MicroPrecision, MicroRecall, MicroF1:
		// Every misclassification is one FP and one FN, so the pooled
		// precision, recall and F1 all equal accuracy.
		return cm.GetAccuracy()
	default:
		return 0.0
	}
}

// rowTotal counts samples whose true class is class (TP + FN).
func (cm *ConfusionMatrix) rowTotal(class int) int {
	total := 0
	for _, n := range cm.Matrix[class] {
		total += n
	}
	return total
}

// columnTotal counts samples predicted as class (TP + FP).
func (cm *ConfusionMatrix) columnTotal(class int) int {
	total := 0
	for i := range cm.Matrix {
		total += cm.Matrix[i][class]
	}
	return total
}

// macroAverage averages TP/denominator over classes with a non-zero denominator.
func (cm *ConfusionMatrix) macroAverage(denominator func(int) int) float64 {
	var scores []float64
	for class := 0; class < cm.NumClasses; class++ {
		if d := denominator(class); d > 0 {
			scores = append(scores, float64(cm.Matrix[class][class])/float64(d))
		}
	}
	if len(scores) == 0 {
		return 0.0
	}
	return floats.Sum(scores) / float64(len(scores))
}

func harmonicMean(a, b float64) float64 {
	if a+b == 0 {
		return 0.0
	}
	return 2 * a * b / (a + b)
}

// GetAccuracy returns overall classification accuracy
func (cm *ConfusionMatrix) GetAccuracy() float64 {
	if cm.TotalSamples == 0 {
		return 0.0
	}

	correct := 0
	for i := 0; i < cm.NumClasses; i++ {
		correct += cm.Matrix[i][i]
	}

	return float64(correct) / float64(cm.TotalSamples)
}

// CountCorrect returns how many rows of output have their arg-max equal to
// the label.
func CountCorrect(output, labels *tensor.Tensor) (int, error) {
	predicted, err := tensor.ArgMax(output)
	if err != nil {
		return 0, err
	}
	trueLabels, err := labels.GetInt32Data()
	if err != nil {
		return 0, err
	}
	if len(trueLabels) != len(predicted) {
		return 0, &tensor.ShapeError{Op: "CountCorrect", Field: "labels", Expected: []int{len(predicted)}, Actual: labels.Shape}
	}

	correct := 0
	for i, p := range predicted {
		if p == int(trueLabels[i]) {
			correct++
		}
	}
	return correct, nil
}

// RegressionMetrics holds comprehensive regression evaluation metrics
type RegressionMetrics struct {
	MAE  float64 // Mean Absolute Error
	MSE  float64 // Mean Squared Error
	RMSE float64 // Root Mean Squared Error
	R2   float64 // R-squared
}

// CalculateRegressionMetrics computes regression metrics over paired values
func CalculateRegressionMetrics(predictions, trueValues []float64) (*RegressionMetrics, error) {
	if len(predictions) != len(trueValues) || len(predictions) == 0 {
		return nil, fmt.Errorf("need equal, non-empty inputs: got %d predictions and %d targets", len(predictions), len(trueValues))
	}
	n := float64(len(predictions))
	meanTrue := floats.Sum(trueValues) / n

	var sumAbsErr, sumSqErr, sumSqTotal float64
	for i, pred := range predictions {
		diff := pred - trueValues[i]
		sumAbsErr += math.Abs(diff)
		sumSqErr += diff * diff
		sumSqTotal += (trueValues[i] - meanTrue) * (trueValues[i] - meanTrue)
	}

	mse := sumSqErr / n
	r2 := 0.0
	if sumSqTotal > 0 {
		r2 = 1.0 - sumSqErr/sumSqTotal
	}

	return &RegressionMetrics{
		MAE:  sumAbsErr / n,
		MSE:  mse,
		RMSE: math.Sqrt(mse),
		R2:   r2,
	}, nil
}
