package model

// GenerationFailedMarker is the completion recorded for a sample whose
// generation failed after exhausting retries.
const GenerationFailedMarker = "[generation failed]"

// Prompt is the rendered text sent to the model for one bug and mode.
type Prompt struct {
	Mode     Mode   `json:"mode"`
	Template string `json:"template"`
	Text     string `json:"text"`
	Bug      BugKey `json:"bug"`
}

// Sample is one raw completion collected for a prompt.
type Sample struct {
	Bug        BugKey `json:"bug"`
	Mode       Mode   `json:"mode"`
	Index      int    `json:"index"`
	Completion string `json:"completion"`
	// Failed marks the sentinel recorded in place of a failed generation.
	Failed   bool   `json:"failed,omitempty"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// FailedSample builds the sentinel sample for a generation that could not be
// completed.
func FailedSample(prompt Prompt, index, attempts int, err error) Sample {
	sample := Sample{
		Bug:        prompt.Bug,
		Mode:       prompt.Mode,
		Index:      index,
		Completion: GenerationFailedMarker,
		Failed:     true,
		Attempts:   attempts,
	}
	if err != nil {
		sample.Error = err.Error()
	}

	return sample
}

// EvaluationOutcome is the verdict of CorrectnessScorer for one sample.
type EvaluationOutcome struct {
	Sample  Sample `json:"sample"`
	Correct bool   `json:"correct"`
}
