package chat

import (
	"context"
	"math"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"evrange/ml"
)

type fakePredictor struct {
	calls []ml.FeatureRow
	value float64
	err   error
}

func (f *fakePredictor) Predict(ctx context.Context, row ml.FeatureRow) (float64, error) {
	f.calls = append(f.calls, row)
	return f.value, f.err
}

func TestReplyPredictCommand(t *testing.T) {
	predictor := &fakePredictor{value: 412.346}
	in := NewInterpreter(predictor, rand.New(rand.NewSource(1)))

	reply := in.Reply(context.Background(), "predict 60,4500,180,7")
	if len(predictor.calls) != 1 {
		t.Fatalf("expected one predict call, got %d", len(predictor.calls))
	}
	want := ml.FeatureRow{
		ml.FeatureBattery:      60,
		ml.FeatureLength:       4500,
		ml.FeatureTopSpeed:     180,
		ml.FeatureAcceleration: 7,
		ml.FeatureCells:        400,
		ml.FeatureTorque:       300,
		ml.FeatureFastCharge:   120,
		ml.FeatureTowing:       0,
		ml.FeatureWidth:        1820,
	}
	if !reflect.DeepEqual(predictor.calls[0], want) {
		t.Fatalf("unexpected row: %v", predictor.calls[0])
	}
	if reply.Text != "Estimated range: 412.35 km" {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
	if reply.Prediction == nil || *reply.Prediction != 412.346 {
		t.Fatalf("expected prediction in reply, got %v", reply.Prediction)
	}
}

func TestReplyTriggerIsCaseInsensitive(t *testing.T) {
	predictor := &fakePredictor{value: 300}
	in := NewInterpreter(predictor, nil)
	in.Reply(context.Background(), "Please PREDICT 75 4700 200 5.5 thanks")
	if len(predictor.calls) != 1 {
		t.Fatalf("expected a prediction, got %d calls", len(predictor.calls))
	}
	if predictor.calls[0][ml.FeatureAcceleration] != 5.5 {
		t.Fatalf("decimal not parsed: %v", predictor.calls[0])
	}
}

func TestReplyNeedsFourNumbers(t *testing.T) {
	predictor := &fakePredictor{}
	in := NewInterpreter(predictor, nil)
	reply := in.Reply(context.Background(), "predict 60,4500,180")
	if reply.Text != NeedValuesReply {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
	if len(predictor.calls) != 0 {
		t.Fatal("predict must not be called with fewer than 4 numbers")
	}
}

func TestReplyCanned(t *testing.T) {
	predictor := &fakePredictor{}
	in := NewInterpreter(predictor, rand.New(rand.NewSource(3)))
	for i := 0; i < 10; i++ {
		reply := in.Reply(context.Background(), "how far can 60 kWh go?")
		found := false
		for _, canned := range CannedReplies {
			if reply.Text == canned {
				found = true
			}
		}
		if !found {
			t.Fatalf("unexpected reply: %q", reply.Text)
		}
	}
	if len(predictor.calls) != 0 {
		t.Fatal("predict must not be called without the trigger")
	}
}

func TestReplyPredictionErrors(t *testing.T) {
	in := NewInterpreter(&fakePredictor{err: ml.ErrArtifactMissing}, nil)
	reply := in.Reply(context.Background(), "predict 60,4500,180,7")
	if !strings.Contains(reply.Text, "not ready") {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}

	mismatch := &ml.SchemaMismatchError{Missing: []string{ml.FeatureWidth}}
	in = NewInterpreter(&fakePredictor{err: mismatch}, nil)
	reply = in.Reply(context.Background(), "predict 60,4500,180,7")
	if !strings.HasPrefix(reply.Text, "Prediction failed:") || !strings.Contains(reply.Text, ml.FeatureWidth) {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
}

func TestExtractNumbers(t *testing.T) {
	got := ExtractNumbers("predict 60.5,4500, 180 and 7.")
	want := []float64{60.5, 4500, 180, 7}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExtractNumbersOverflowKeepsPositions(t *testing.T) {
	huge := strings.Repeat("9", 400)
	got := ExtractNumbers(huge + ",60,4500")
	if len(got) != 3 || !math.IsInf(got[0], 1) || got[1] != 60 || got[2] != 4500 {
		t.Fatalf("unexpected numbers: %v", got)
	}
}

func TestReplyOverflowNotPredicted(t *testing.T) {
	predictor := &fakePredictor{}
	in := NewInterpreter(predictor, nil)
	reply := in.Reply(context.Background(), "predict "+strings.Repeat("9", 400)+",60,4500,180,7")
	if reply.Text != OverflowReply {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}
	if len(predictor.calls) != 0 {
		t.Fatal("predict must not be called with an overflowing value")
	}
}

func TestSessionTranscript(t *testing.T) {
	session := NewSession("abc")
	in := NewInterpreter(&fakePredictor{value: 250}, nil)

	if _, ok := session.Send(context.Background(), in, "   "); ok {
		t.Fatal("blank input should be ignored")
	}
	if _, ok := session.Send(context.Background(), in, "predict 60,4500,180,7"); !ok {
		t.Fatal("expected message to be handled")
	}
	history := session.History()
	if len(history) != 3 {
		t.Fatalf("expected greeting plus two messages, got %d", len(history))
	}
	if history[0].Text != Greeting || history[1].Role != RoleUser || history[2].Role != RoleBot {
		t.Fatalf("unexpected transcript: %+v", history)
	}
}
