// Package chat is a keyword-triggered command interpreter over the range
// predictor. It is not a language model: one trigger word and a positional
// list of four numbers.
package chat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"evrange/ml"
)

const (
	Trigger  = "predict"
	Greeting = "Hello! Type 'predict 60,4500,180,7' or ask me EV questions!"

	NeedValuesReply = "Please provide 4 numbers: predict 60,4500,180,7"
	OverflowReply   = "Those numbers are too large. Try 'predict 60,4500,180,7'."
)

var numberPattern = regexp.MustCompile(`\d+\.?\d*`)

// CannedReplies answer anything without the trigger keyword.
var CannedReplies = []string{
	"Try 'predict 60,4500,180,7'!",
	"I can estimate EV ranges. Ask me something!",
}

// positional order of the four numbers after the trigger
var commandFields = []string{
	ml.FeatureBattery,
	ml.FeatureLength,
	ml.FeatureTopSpeed,
	ml.FeatureAcceleration,
}

// Reply is the interpreter's answer to one line.
type Reply struct {
	Text       string        `json:"text"`
	Row        ml.FeatureRow `json:"row,omitempty"`
	Prediction *float64      `json:"prediction,omitempty"`
}

// Interpreter answers chat lines, calling the predictor on a predict command.
type Interpreter struct {
	predictor ml.RangePredictor

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewInterpreter seeds rnd from the clock when it is nil.
func NewInterpreter(predictor ml.RangePredictor, rnd *rand.Rand) *Interpreter {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Interpreter{predictor: predictor, rnd: rnd}
}

// ExtractNumbers returns every unsigned decimal number in text, in order.
// A number too large for float64 comes back as +Inf so positions never shift.
func ExtractNumbers(text string) []float64 {
	matches := numberPattern.FindAllString(text, -1)
	nums := make([]float64, 0, len(matches))
	for _, m := range matches {
		// the pattern only admits valid syntax, so the sole error is ErrRange
		v, _ := strconv.ParseFloat(m, 64)
		nums = append(nums, v)
	}
	return nums
}

// BuildRow maps the first four numbers onto battery, length, top speed and
// acceleration. The rest of the row comes from the defaults.
func BuildRow(nums []float64) (ml.FeatureRow, bool) {
	if len(nums) < len(commandFields) {
		return nil, false
	}
	row := ml.DefaultFeatureValues()
	for i, name := range commandFields {
		row[name] = nums[i]
	}
	return row, true
}

// Reply answers one line. Prediction failures become reply text, never errors.
func (in *Interpreter) Reply(ctx context.Context, text string) Reply {
	lower := strings.ToLower(text)
	if !strings.Contains(lower, Trigger) {
		return Reply{Text: in.canned()}
	}

	row, ok := BuildRow(ExtractNumbers(lower))
	if !ok {
		return Reply{Text: NeedValuesReply}
	}
	for _, name := range commandFields {
		if math.IsInf(row[name], 0) {
			return Reply{Text: OverflowReply}
		}
	}
	pred, err := in.predictor.Predict(ctx, row)
	if err != nil {
		return Reply{Text: failureText(err), Row: row}
	}
	return Reply{
		Text:       fmt.Sprintf("Estimated range: %.2f km", pred),
		Row:        row,
		Prediction: &pred,
	}
}

func failureText(err error) string {
	if errors.Is(err, ml.ErrArtifactMissing) {
		return "The model is not ready yet. Ask an admin to retrain it."
	}
	return fmt.Sprintf("Prediction failed: %v", err)
}

func (in *Interpreter) canned() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return CannedReplies[in.rnd.Intn(len(CannedReplies))]
}
