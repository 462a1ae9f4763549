package scriberr

import "meetsync/internal/config"

// StartParams are the WhisperX options sent when a job starts. Diarization
// is always on so transcripts carry speaker slots.
type StartParams struct {
	ModelFamily                    string  `json:"model_family"`
	Model                          string  `json:"model"`
	ModelCacheOnly                 bool    `json:"model_cache_only"`
	Device                         string  `json:"device"`
	DeviceIndex                    int     `json:"device_index"`
	BatchSize                      int     `json:"batch_size"`
	ComputeType                    string  `json:"compute_type"`
	Threads                        int     `json:"threads"`
	OutputFormat                   string  `json:"output_format"`
	Verbose                        bool    `json:"verbose"`
	Task                           string  `json:"task"`
	InterpolateMethod              string  `json:"interpolate_method"`
	NoAlign                        bool    `json:"no_align"`
	ReturnCharAlignments           bool    `json:"return_char_alignments"`
	VADMethod                      string  `json:"vad_method"`
	VADOnset                       float64 `json:"vad_onset"`
	VADOffset                      float64 `json:"vad_offset"`
	ChunkSize                      int     `json:"chunk_size"`
	Diarize                        bool    `json:"diarize"`
	DiarizeModel                   string  `json:"diarize_model"`
	SpeakerEmbeddings              bool    `json:"speaker_embeddings"`
	Temperature                    float64 `json:"temperature"`
	BestOf                         int     `json:"best_of"`
	BeamSize                       int     `json:"beam_size"`
	Patience                       float64 `json:"patience"`
	LengthPenalty                  float64 `json:"length_penalty"`
	SuppressNumerals               bool    `json:"suppress_numerals"`
	ConditionOnPreviousText        bool    `json:"condition_on_previous_text"`
	FP16                           bool    `json:"fp16"`
	TemperatureIncrementOnFallback float64 `json:"temperature_increment_on_fallback"`
	CompressionRatioThreshold      float64 `json:"compression_ratio_threshold"`
	LogprobThreshold               float64 `json:"logprob_threshold"`
	NoSpeechThreshold              float64 `json:"no_speech_threshold"`
	HighlightWords                 bool    `json:"highlight_words"`
	SegmentResolution              string  `json:"segment_resolution"`
	PrintProgress                  bool    `json:"print_progress"`
	AttentionContextLeft           int     `json:"attention_context_left"`
	AttentionContextRight          int     `json:"attention_context_right"`
	IsMultiTrackEnabled            bool    `json:"is_multi_track_enabled"`
}

// DefaultStartParams returns the diarized WhisperX profile with the model,
// device, and batch settings taken from cfg.
func DefaultStartParams(cfg config.Scriberr) StartParams {
	return StartParams{
		ModelFamily:                    "whisper",
		Model:                          cfg.Model,
		Device:                         cfg.Device,
		BatchSize:                      cfg.BatchSize,
		ComputeType:                    cfg.ComputeType,
		OutputFormat:                   "all",
		Verbose:                        true,
		Task:                           "transcribe",
		InterpolateMethod:              "nearest",
		VADMethod:                      "pyannote",
		VADOnset:                       0.55,
		VADOffset:                      0.35,
		ChunkSize:                      30,
		Diarize:                        true,
		DiarizeModel:                   "pyannote",
		BestOf:                         5,
		BeamSize:                       5,
		Patience:                       1,
		LengthPenalty:                  1,
		FP16:                           true,
		TemperatureIncrementOnFallback: 0.2,
		CompressionRatioThreshold:      2.4,
		LogprobThreshold:               -1,
		NoSpeechThreshold:              0.6,
		SegmentResolution:              "sentence",
		AttentionContextLeft:           256,
		AttentionContextRight:          256,
	}
}
