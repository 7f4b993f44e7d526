package compaction

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenEstimator approximates how many tokens a text costs. Reporting only.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharEstimator counts one token per four characters.
type CharEstimator struct{}

func (CharEstimator) Estimate(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// TiktokenEstimator counts cl100k_base tokens. The encoding is loaded on first use.
type TiktokenEstimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

func NewTiktokenEstimator() *TiktokenEstimator {
	return &TiktokenEstimator{}
}

// Load fetches the encoding eagerly so a missing vocabulary surfaces at startup.
func (e *TiktokenEstimator) Load() error {
	e.once.Do(func() {
		e.enc, e.err = tiktoken.GetEncoding("cl100k_base")
		if e.err != nil {
			e.err = fmt.Errorf("load tokenizer: %w", e.err)
		}
	})
	return e.err
}

// Estimate falls back to the character rule when the encoding is unavailable.
func (e *TiktokenEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	if err := e.Load(); err != nil {
		return CharEstimator{}.Estimate(text)
	}
	return len(e.enc.Encode(text, nil, nil))
}
