package training

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/PotapenkoOleg/PyTorch/checkpoints"
	"github.com/PotapenkoOleg/PyTorch/optimizer"
	"github.com/pkg/errors"
)

// CaptureCheckpoint snapshots the model's architecture and parameter values.
// opt may be nil; otherwise its state is stored alongside the weights.
func CaptureCheckpoint(model *Model, opt optimizer.Optimizer, state checkpoints.TrainingState) (*checkpoints.Checkpoint, error) {
	weights, err := checkpoints.ExtractWeights(model.NamedParameters())
	if err != nil {
		return nil, errors.Wrap(err, "failed to extract weights")
	}

	ckpt := &checkpoints.Checkpoint{
		Architecture:  checkpoints.ArchitectureFromSpec(model.Spec()),
		Weights:       weights,
		TrainingState: state,
	}
	if opt != nil {
		optState, err := opt.GetState()
		if err != nil {
			return nil, errors.Wrap(err, "failed to extract optimizer state")
		}
		ckpt.OptimizerState = optState
	}
	return ckpt, nil
}

// NewModelFromCheckpoint rebuilds a model from the widths recorded in ckpt
// and loads its weights.
func NewModelFromCheckpoint(ckpt *checkpoints.Checkpoint) (*Model, error) {
	if err := ckpt.Validate(); err != nil {
		return nil, err
	}
	spec, err := ckpt.Architecture.ModelSpec()
	if err != nil {
		return nil, errors.Wrap(err, "invalid architecture")
	}
	// the recorded weights must describe the recorded widths before anything
	// of that size is allocated
	if err := checkpoints.CheckWeights(ckpt.Weights, spec.ExpectedParameters()); err != nil {
		return nil, err
	}
	// initial values are overwritten, any seed will do
	model, err := NewModel(spec, rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, err
	}
	if err := checkpoints.LoadWeights(ckpt.Weights, model.NamedParameters()); err != nil {
		return nil, err
	}
	return model, nil
}

// RestoreCheckpoint loads ckpt's weights into an existing model and, when both
// are present, its optimizer state into opt. Weights are validated as a whole
// before anything is copied.
func RestoreCheckpoint(ckpt *checkpoints.Checkpoint, model *Model, opt optimizer.Optimizer) error {
	if err := checkpoints.LoadWeights(ckpt.Weights, model.NamedParameters()); err != nil {
		return err
	}
	if opt != nil && ckpt.OptimizerState != nil {
		if err := opt.LoadState(ckpt.OptimizerState); err != nil {
			return errors.Wrap(err, "failed to restore optimizer state")
		}
	}
	return nil
}

// CheckpointConfig configures checkpoint saving behavior
type CheckpointConfig struct {
	SaveDirectory   string                       // Directory to save checkpoints
	SaveFrequency   int                          // Save every N epochs (0 = disabled)
	SaveBest        bool                         // Save checkpoint when test loss improves
	MaxCheckpoints  int                          // Maximum number of periodic checkpoints to keep (0 = unlimited)
	Format          checkpoints.CheckpointFormat // JSON or binary
	FilenamePattern string                       // Pattern for checkpoint filenames
	RunID           string                       // Recorded in every checkpoint's metadata
}

// DefaultCheckpointConfig returns a sensible default configuration
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		SaveDirectory:   "./checkpoints",
		SaveFrequency:   5, // Save every 5 epochs
		SaveBest:        true,
		MaxCheckpoints:  10,
		Format:          checkpoints.FormatBinary,
		FilenamePattern: "checkpoint_epoch_%d_step_%d",
	}
}

// CheckpointManager saves periodic and best checkpoints during training and
// rotates old periodic files.
type CheckpointManager struct {
	config     CheckpointConfig
	saver      *checkpoints.CheckpointSaver
	bestLoss   float64
	hasBest    bool
	savedFiles []string // Track saved checkpoint files for cleanup
	logger     *log.Logger
}

// NewCheckpointManager creates a new checkpoint manager
func NewCheckpointManager(config CheckpointConfig, logger *log.Logger) *CheckpointManager {
	if logger == nil {
		logger = log.Default()
	}
	return &CheckpointManager{
		config: config,
		saver:  checkpoints.NewCheckpointSaver(config.Format),
		logger: logger,
	}
}

// SavedFiles returns the periodic checkpoints currently on disk, oldest first.
func (cm *CheckpointManager) SavedFiles() []string {
	return append([]string(nil), cm.savedFiles...)
}

// BestPath is where the best checkpoint is written.
func (cm *CheckpointManager) BestPath() string {
	return filepath.Join(cm.config.SaveDirectory, "best_checkpoint."+cm.getFileExtension())
}

// OnEpochEnd writes the periodic and best checkpoints that are due after an
// epoch. It returns the paths written.
func (cm *CheckpointManager) OnEpochEnd(model *Model, opt optimizer.Optimizer, state checkpoints.TrainingState, report EpochReport) ([]string, error) {
	var written []string

	if cm.config.SaveFrequency > 0 && state.Epoch%cm.config.SaveFrequency == 0 {
		path, err := cm.SaveCheckpoint(model, opt, state, fmt.Sprintf("Periodic checkpoint - Epoch %d", state.Epoch))
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}

	metric := report.TrainLoss
	if report.Evaluated {
		metric = report.TestLoss
	}
	if cm.config.SaveBest && (!cm.hasBest || metric < cm.bestLoss) {
		cm.bestLoss, cm.hasBest = metric, true

		ckpt, err := CaptureCheckpoint(model, opt, state)
		if err != nil {
			return written, err
		}
		ckpt.Metadata = cm.metadata(fmt.Sprintf("Best checkpoint - Loss: %.6f, Accuracy: %.2f%%", metric, report.TestAccuracy*100))
		if err := cm.ensureDirectory(); err != nil {
			return written, err
		}
		if err := cm.saver.SaveCheckpoint(ckpt, cm.BestPath()); err != nil {
			return written, errors.Wrap(err, "failed to save best checkpoint")
		}
		written = append(written, cm.BestPath())
	}

	return written, nil
}

// SaveCheckpoint writes a checkpoint of model to the next periodic filename
func (cm *CheckpointManager) SaveCheckpoint(model *Model, opt optimizer.Optimizer, state checkpoints.TrainingState, description string) (string, error) {
	ckpt, err := CaptureCheckpoint(model, opt, state)
	if err != nil {
		return "", errors.Wrap(err, "failed to create checkpoint")
	}
	ckpt.Metadata = cm.metadata(description)

	path := filepath.Join(cm.config.SaveDirectory, cm.generateFilename(state.Epoch, state.Step))
	if err := cm.ensureDirectory(); err != nil {
		return "", err
	}
	if err := cm.saver.SaveCheckpoint(ckpt, path); err != nil {
		return "", errors.Wrap(err, "failed to save checkpoint")
	}

	cm.savedFiles = append(cm.savedFiles, path)
	if err := cm.cleanupOldCheckpoints(); err != nil {
		// a stale file is not worth failing the run
		cm.logger.Printf("warning: failed to clean up old checkpoints: %v", err)
	}
	return path, nil
}

// LoadCheckpoint reads and validates a checkpoint written by this manager
func (cm *CheckpointManager) LoadCheckpoint(path string) (*checkpoints.Checkpoint, error) {
	ckpt, err := cm.saver.LoadCheckpoint(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load checkpoint")
	}
	return ckpt, nil
}

func (cm *CheckpointManager) metadata(description string) checkpoints.CheckpointMetadata {
	return checkpoints.CheckpointMetadata{
		RunID:       cm.config.RunID,
		Description: description,
	}
}

func (cm *CheckpointManager) generateFilename(epoch int, step int) string {
	pattern := cm.config.FilenamePattern
	if pattern == "" {
		pattern = "checkpoint_epoch_%d_step_%d"
	}
	return fmt.Sprintf(pattern, epoch, step) + "." + cm.getFileExtension()
}

func (cm *CheckpointManager) getFileExtension() string {
	switch cm.config.Format {
	case checkpoints.FormatJSON:
		return "json"
	default:
		return "ckpt"
	}
}

func (cm *CheckpointManager) ensureDirectory() error {
	if err := os.MkdirAll(cm.config.SaveDirectory, 0755); err != nil {
		return errors.Wrap(err, "failed to create checkpoint directory")
	}
	return nil
}

func (cm *CheckpointManager) cleanupOldCheckpoints() error {
	if cm.config.MaxCheckpoints <= 0 || len(cm.savedFiles) <= cm.config.MaxCheckpoints {
		return nil
	}

	toRemove := len(cm.savedFiles) - cm.config.MaxCheckpoints
	for i := 0; i < toRemove; i++ {
		if err := os.Remove(cm.savedFiles[i]); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove old checkpoint %s: %v", cm.savedFiles[i], err)
		}
	}
	cm.savedFiles = cm.savedFiles[toRemove:]
	return nil
}
