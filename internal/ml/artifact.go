package ml

import (
	"os"
	"path/filepath"
)

// ModelArtifact is the trained model file a scorer needs to produce scores.
const ModelArtifact = "anomaly_detector.joblib"

// ModelAvailable reports whether the trained model artifact exists under the
// models directory. Checked fresh on every detection pass, so dropping the
// artifact in place takes effect without a restart.
func ModelAvailable(modelsPath string) bool {
	info, err := os.Stat(filepath.Join(modelsPath, ModelArtifact))
	return err == nil && !info.IsDir()
}
