package planner

import "context"

// Prediction is the structured object returned by a Predictor call. Keys are
// probed by name rather than bound to a fixed struct so forward-compatible
// wire additions from the model never break decoding; §4.C6 documents the
// keys the planner actually reads.
//
// On failure (timeout, upstream error, unparseable output) a Predictor
// implementation returns a nil Prediction and a non-nil error. PlanAction
// then substitutes a Prediction containing a sentinel "error" key and
// low-confidence defaults (errorPrediction), so it can still assemble a
// degraded ActionPlan (§4.C2, §7 PredictorFailure/ParseFailure).
type Prediction map[string]any

// predictionErrorKey is the sentinel key errorPrediction sets on failure.
const predictionErrorKey = "error"

// Predictor is the capability contract over an LLM: prompt in, structured
// object out. Implementations translate a single rendered prompt into one
// model invocation. The port is cancellation-aware: callers supply a
// deadline via ctx, and implementations must release resources when it
// elapses rather than leak the in-flight call.
type Predictor interface {
	// Predict issues one model call with the given prompt and temperature.
	// Implementations never return a nil error alongside a nil Prediction;
	// on irrecoverable failure they return a non-nil error, and PlanAction
	// (§4.C6) is responsible for converting that into a degraded plan.
	Predict(ctx context.Context, prompt string, temperature float64) (Prediction, error)
}

// errorPrediction builds the sentinel failure shape documented on Prediction.
func errorPrediction(reason string) Prediction {
	return Prediction{
		predictionErrorKey:   reason,
		"overall_confidence": 0.1,
		"intent":             map[string]any{"action_type": string(ActionNavigate)},
		"route_matching":     map[string]any{},
		"entity_resolution":  []any{},
		"reasoning":          "predictor failure: " + reason,
	}
}

// hadError reports whether p carries the sentinel failure key.
func (p Prediction) hadError() (string, bool) {
	v, ok := p[predictionErrorKey]
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, true
}
