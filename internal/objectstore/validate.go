package objectstore

import (
	"os"
	"path/filepath"
	"regexp"
)

var (
	shardIndexPattern   = regexp.MustCompile(`.*\.index\.json$`)
	safetensorShardPattern = regexp.MustCompile(`^model-\d+-of-\d+\.safetensors$`)
	pytorchShardPattern    = regexp.MustCompile(`^pytorch_model-\d+-of-\d+\.bin$`)
)

// IsValidArtifactDir reports whether dir contains config.json plus at
// least one of: single-file weights, a shard index, or a set of shard
// files, per §4.2's validity rule. An invalid directory is treated as
// absent by callers.
func IsValidArtifactDir(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, configFileName)); err != nil {
		return false
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case name == singleFileWeights, name == safetensorsWeights:
			return true
		case shardIndexPattern.MatchString(name):
			return true
		case safetensorShardPattern.MatchString(name):
			return true
		case pytorchShardPattern.MatchString(name):
			return true
		}
	}

	return false
}

// ResolveRoot applies the merged-subdirectory rule: if a merged/ child
// exists, it is preferred as the artifact root.
func ResolveRoot(dir string) string {
	merged := filepath.Join(dir, mergedSubdir)
	if info, err := os.Stat(merged); err == nil && info.IsDir() {
		return merged
	}
	return dir
}
