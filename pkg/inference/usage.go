package inference

import (
	"github.com/charmbracelet/log"

	"cardforge/pkg/utils"
)

// EstimateUsage counts tokens locally for backends that report no usage.
// It returns nil when the tokenizer is unavailable.
func EstimateUsage(req Request, completion string) *TokenUsage {
	prompt, err := utils.NumTokens(req.SystemPrompt + "\n" + req.Prompt)
	if err != nil {
		log.Debug("token estimate unavailable", "error", err)
		return nil
	}
	out, err := utils.NumTokens(completion)
	if err != nil {
		return nil
	}
	return &TokenUsage{Prompt: prompt, Completion: out, Total: prompt + out}
}
