package conversation

import (
	"fmt"
	"math"

	"github.com/Lauiee/AdvisorAI-Api/internal/utils"
)

// Weights blends the initial matching score with the chat score.
type Weights struct {
	Initial float64 `mapstructure:"initial-weight" json:"initial_weight"`
	Chat    float64 `mapstructure:"chat-weight" json:"chat_weight"`
}

func DefaultWeights() Weights {
	return Weights{Initial: 0.6, Chat: 0.4}
}

func (w Weights) Validate() error {
	if w.Initial < 0 || w.Chat < 0 || w.Initial+w.Chat == 0 {
		return fmt.Errorf("invalid combine weights %.2f/%.2f", w.Initial, w.Chat)
	}
	return nil
}

type FinalScore struct {
	FinalScore    int `json:"final_score"`
	InitialScore  int `json:"initial_score"`
	ChatScore     int `json:"chat_score"`
	WeightedScore int `json:"weighted_score"`
}

// Combine keeps the initial score when there was no usable chat, otherwise
// blends both and clamps the result to the published range.
func (w Weights) Combine(initial, chat int) FinalScore {
	if chat == 0 {
		return FinalScore{FinalScore: initial, InitialScore: initial, WeightedScore: initial}
	}

	weighted := int(math.Round((w.Initial*float64(initial) + w.Chat*float64(chat)) / (w.Initial + w.Chat)))
	return FinalScore{
		FinalScore:    utils.Clamp(weighted, MinChatScore, MaxChatScore),
		InitialScore:  initial,
		ChatScore:     chat,
		WeightedScore: weighted,
	}
}

// Combine uses the default 0.6/0.4 weights.
func Combine(initial, chat int) FinalScore {
	return DefaultWeights().Combine(initial, chat)
}
