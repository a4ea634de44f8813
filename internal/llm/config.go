// Package llm wraps the Gemini models used for audio transcription and
// report summaries.
package llm

// Task is a kind of model call. Each task can be routed to its own model.
type Task string

const (
	// TaskTranscribe turns a recorded answer into text.
	TaskTranscribe Task = "transcribe"
	// TaskSummarize writes the narrative section of a local report.
	TaskSummarize Task = "summarize"
)

// DefaultModel serves any task without an explicit model.
const DefaultModel = "gemini-2.5-flash"

// Config routes tasks to models.
type Config struct {
	Models      map[Task]string
	Temperature float32
}

// DefaultConfig returns the default Gemini routing.
func DefaultConfig() *Config {
	return &Config{
		Models: map[Task]string{
			TaskTranscribe: "gemini-2.5-flash-lite",
			TaskSummarize:  DefaultModel,
		},
		Temperature: 0.1,
	}
}

// ModelFor returns the model for task, falling back to DefaultModel.
func (c *Config) ModelFor(task Task) string {
	if m := c.Models[task]; m != "" {
		return m
	}
	return DefaultModel
}

// WithModel returns a copy of the config with task routed to model.
func (c *Config) WithModel(task Task, model string) *Config {
	out := &Config{Models: make(map[Task]string, len(c.Models)+1), Temperature: c.Temperature}
	for k, v := range c.Models {
		out.Models[k] = v
	}
	out.Models[task] = model
	return out
}
