package training

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/PotapenkoOleg/PyTorch/checkpoints"
	"github.com/PotapenkoOleg/PyTorch/optimizer"
	"github.com/PotapenkoOleg/PyTorch/tensor"
	"github.com/pkg/errors"
)

// Phase is a state of the training loop.
type Phase int

const (
	PhaseEpochStart Phase = iota
	PhaseBatchStart
	PhaseForwardDone
	PhaseLossDone
	PhaseBackwardDone
	PhaseStepDone
	PhaseEpochDone
)

func (p Phase) String() string {
	switch p {
	case PhaseEpochStart:
		return "EpochStart"
	case PhaseBatchStart:
		return "BatchStart"
	case PhaseForwardDone:
		return "ForwardDone"
	case PhaseLossDone:
		return "LossDone"
	case PhaseBackwardDone:
		return "BackwardDone"
	case PhaseStepDone:
		return "StepDone"
	case PhaseEpochDone:
		return "EpochDone"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// PhaseEvent describes one transition. Batch is -1 outside a batch; Loss is
// set from LossDone on.
type PhaseEvent struct {
	Phase Phase
	Epoch int // 1-based
	Batch int
	Loss  float64
}

// PhaseObserver is notified of every transition of the training loop.
type PhaseObserver interface {
	OnPhase(event PhaseEvent)
}

// PhaseObserverFunc adapts a function to the PhaseObserver interface.
type PhaseObserverFunc func(PhaseEvent)

func (f PhaseObserverFunc) OnPhase(event PhaseEvent) { f(event) }

// TrainingConfig holds configuration for training
type TrainingConfig struct {
	Epochs        int
	LogEvery      int  // Log running loss every N batches (0 = never)
	EarlyStopping bool // Enable early stopping based on test loss
	Patience      int  // Number of epochs to wait for improvement before stopping

	Scheduler   LRScheduler        // nil keeps the optimizer's rate
	Logger      *log.Logger        // nil uses log.Default()
	Reporter    Reporter           // nil uses a LogReporter on Logger
	Observer    PhaseObserver      // optional
	Checkpoints *CheckpointManager // optional
}

// DefaultTrainingConfig returns a ten-epoch configuration without early stopping.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		Epochs:   10,
		Patience: 3,
	}
}

// Trainer drives the per-batch cycle ZeroGrad, Forward, Loss, Backward, Step
// over a fixed number of epochs.
type Trainer struct {
	model     *Model
	optimizer optimizer.Optimizer
	criterion Loss
	config    TrainingConfig
	logger    *log.Logger
	reporter  Reporter

	phase   Phase
	history []EpochReport
	steps   int
}

// NewTrainer creates a new Trainer. The loss must agree with the model's
// output mode.
func NewTrainer(model *Model, opt optimizer.Optimizer, criterion Loss, config TrainingConfig) (*Trainer, error) {
	if model == nil || opt == nil || criterion == nil {
		return nil, errors.New("model, optimizer and loss are required")
	}
	if config.Epochs <= 0 {
		return nil, errors.Errorf("epochs must be positive, got %d", config.Epochs)
	}
	if err := CheckLossPairing(model.Spec().OutputMode, criterion); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}
	reporter := config.Reporter
	if reporter == nil {
		reporter = NewLogReporter(logger)
	}

	return &Trainer{
		model:     model,
		optimizer: opt,
		criterion: criterion,
		config:    config,
		logger:    logger,
		reporter:  reporter,
		phase:     PhaseEpochStart,
	}, nil
}

// Phase returns the most recent state of the loop.
func (t *Trainer) Phase() Phase {
	return t.phase
}

// History returns the report of every completed epoch.
func (t *Trainer) History() []EpochReport {
	return t.history
}

// Steps returns the number of optimizer steps taken so far.
func (t *Trainer) Steps() int {
	return t.steps
}

func (t *Trainer) enter(phase Phase, epoch, batch int, loss float64) {
	t.phase = phase
	if t.config.Observer != nil {
		t.config.Observer.OnPhase(PhaseEvent{Phase: phase, Epoch: epoch, Batch: batch, Loss: loss})
	}
}

// Train runs the configured number of epochs. testLoader may be nil. The
// first error aborts the run and is returned with its epoch and batch.
func (t *Trainer) Train(trainLoader, testLoader *DataLoader) ([]EpochReport, error) {
	if trainLoader == nil {
		return nil, errors.New("training data loader is nil")
	}

	baseLR := t.optimizer.GetLR()
	bestTestLoss := math.Inf(1)
	bestAccuracy := 0.0
	patienceCounter := 0

	for epoch := 1; epoch <= t.config.Epochs; epoch++ {
		epochStart := time.Now()

		if t.config.Scheduler != nil {
			if _, byMetric := t.config.Scheduler.(MetricScheduler); !byMetric {
				t.optimizer.SetLR(t.config.Scheduler.GetLR(epoch-1, t.steps, baseLR))
			}
		}
		lr := t.optimizer.GetLR()

		t.enter(PhaseEpochStart, epoch, -1, 0)
		t.model.Train()
		trainLoss, err := t.trainEpoch(trainLoader, epoch)
		if err != nil {
			return t.history, err
		}

		report := EpochReport{
			Epoch:        epoch,
			TotalEpochs:  t.config.Epochs,
			TrainLoss:    trainLoss,
			LearningRate: lr,
		}

		if testLoader != nil {
			testLoss, testAcc, err := t.Evaluate(testLoader)
			if err != nil {
				return t.history, errors.Wrapf(err, "epoch %d: evaluation failed", epoch)
			}
			report.TestLoss, report.TestAccuracy, report.Evaluated = testLoss, testAcc, true
			if testAcc > bestAccuracy {
				bestAccuracy = testAcc
			}

			if ms, ok := t.config.Scheduler.(MetricScheduler); ok {
				t.optimizer.SetLR(ms.Step(testLoss, t.optimizer.GetLR()))
			}
		}
		report.Duration = time.Since(epochStart)

		t.history = append(t.history, report)
		t.enter(PhaseEpochDone, epoch, -1, trainLoss)
		t.reporter.ReportEpoch(report)

		if t.config.Checkpoints != nil {
			state := checkpoints.TrainingState{
				Epoch:        epoch,
				Step:         t.steps,
				LearningRate: t.optimizer.GetLR(),
				BestLoss:     math.Min(bestTestLoss, report.TestLoss),
				BestAccuracy: bestAccuracy,
				TotalSteps:   t.config.Epochs * trainLoader.Len(),
			}
			if !report.Evaluated {
				state.BestLoss = trainLoss
			}
			if _, err := t.config.Checkpoints.OnEpochEnd(t.model, t.optimizer, state, report); err != nil {
				return t.history, errors.Wrapf(err, "epoch %d: checkpoint failed", epoch)
			}
		}

		if report.Evaluated && t.config.EarlyStopping {
			if report.TestLoss < bestTestLoss {
				bestTestLoss = report.TestLoss
				patienceCounter = 0
			} else {
				patienceCounter++
				if patienceCounter >= t.config.Patience {
					t.logger.Printf("early stopping after epoch %d: test loss has not improved for %d epochs", epoch, patienceCounter)
					break
				}
			}
		} else if report.Evaluated && report.TestLoss < bestTestLoss {
			bestTestLoss = report.TestLoss
		}
	}

	return t.history, nil
}

// trainEpoch runs one epoch and returns the sample-weighted mean loss.
func (t *Trainer) trainEpoch(loader *DataLoader, epoch int) (float64, error) {
	var totalLoss float64
	var totalSamples int

	loader.Reset()
	for batchIdx := 0; loader.HasNext(); batchIdx++ {
		batch, err := loader.Next()
		if err != nil {
			return 0, errors.Wrapf(err, "epoch %d batch %d", epoch, batchIdx)
		}
		if batch == nil {
			break
		}

		lossValue, err := t.trainBatch(batch, epoch, batchIdx)
		if err != nil {
			return 0, errors.Wrapf(err, "epoch %d batch %d", epoch, batchIdx)
		}

		totalLoss += lossValue * float64(batch.Size())
		totalSamples += batch.Size()

		if t.config.LogEvery > 0 && (batchIdx+1)%t.config.LogEvery == 0 {
			t.logger.Printf("epoch=%d batch=%d/%d running_loss=%.4f", epoch, batchIdx+1, loader.Len(), totalLoss/float64(totalSamples))
		}
	}

	if totalSamples == 0 {
		return 0, errors.Errorf("epoch %d: training loader produced no samples", epoch)
	}
	return totalLoss / float64(totalSamples), nil
}

// trainBatch performs one optimization step on batch.
func (t *Trainer) trainBatch(batch *Batch, epoch, batchIdx int) (float64, error) {
	t.enter(PhaseBatchStart, epoch, batchIdx, 0)
	t.optimizer.ZeroGrad()

	output, err := t.model.Forward(batch.Data)
	if err != nil {
		return 0, errors.Wrap(err, "forward pass")
	}
	t.enter(PhaseForwardDone, epoch, batchIdx, 0)

	loss, err := t.criterion.Forward(output, batch.Labels)
	if err != nil {
		return 0, errors.Wrap(err, "loss")
	}
	lossValue, err := tensor.LossValue(loss)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(lossValue) || math.IsInf(lossValue, 0) {
		return 0, errors.Errorf("loss diverged to %f", lossValue)
	}
	t.enter(PhaseLossDone, epoch, batchIdx, lossValue)

	if err := loss.Backward(); err != nil {
		return 0, errors.Wrap(err, "backward pass")
	}
	t.enter(PhaseBackwardDone, epoch, batchIdx, lossValue)

	if err := t.optimizer.Step(); err != nil {
		return 0, errors.Wrap(err, "optimizer step")
	}
	t.steps++
	t.enter(PhaseStepDone, epoch, batchIdx, lossValue)

	return lossValue, nil
}

// Evaluate computes the sample-weighted loss and the accuracy over every
// batch of loader without recording a graph.
func (t *Trainer) Evaluate(loader *DataLoader) (float64, float64, error) {
	t.model.Eval()
	defer t.model.Train()
	return Evaluate(t.model, t.criterion, loader)
}

// Evaluate is the model-only form of Trainer.Evaluate.
func Evaluate(model *Model, criterion Loss, loader *DataLoader) (float64, float64, error) {
	var totalLoss float64
	var totalCorrect, totalSamples int

	err := tensor.NoGrad(func() error {
		loader.Reset()
		for loader.HasNext() {
			batch, err := loader.Next()
			if err != nil {
				return err
			}
			if batch == nil {
				break
			}

			output, err := model.Forward(batch.Data)
			if err != nil {
				return err
			}
			loss, err := criterion.Forward(output, batch.Labels)
			if err != nil {
				return err
			}
			lossValue, err := tensor.LossValue(loss)
			if err != nil {
				return err
			}
			correct, err := CountCorrect(output, batch.Labels)
			if err != nil {
				return err
			}

			totalLoss += lossValue * float64(batch.Size())
			totalCorrect += correct
			totalSamples += batch.Size()
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	if totalSamples == 0 {
		return 0, 0, errors.New("evaluation loader produced no samples")
	}

	return totalLoss / float64(totalSamples), float64(totalCorrect) / float64(totalSamples), nil
}
