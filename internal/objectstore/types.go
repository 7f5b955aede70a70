package objectstore

// TrainingConfig is the structured form of a fine-tune job's
// training_config.json, referencing the base model the adapter was trained
// against.
type TrainingConfig struct {
	BaseModel string `json:"base_model"`
	Adapter   string `json:"adapter_type,omitempty"`
	Rank      int    `json:"lora_rank,omitempty"`
}

const (
	configFileName       = "config.json"
	trainingConfigFile   = "training_config.json"
	mergedSubdir         = "merged"
	adapterSubdir        = "adapter"
	singleFileWeights    = "pytorch_model.bin"
	safetensorsWeights   = "model.safetensors"
)
