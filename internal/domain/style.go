package domain

// Style is a named response style a turn may request. The instruction is
// sent to the model as an extra system entry after the agent prompt.
type Style struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Instruction string `json:"-" yaml:"instruction"`
}
