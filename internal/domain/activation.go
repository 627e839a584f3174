package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"time"
)

// ActivationKind distinguishes the shapes a rule activation can take.
type ActivationKind int

const (
	// ActivationInvalid is any value the rules service sent that is neither
	// a boolean nor a number. It is treated as inactive.
	ActivationInvalid ActivationKind = iota
	ActivationBool
	ActivationNumber
)

// FullActivation is the numeric value given to a boolean true when a
// percentage is needed.
const FullActivation = 100.0

// ActivationValue is a single rule's activation: a boolean for the
// category/sector views or a percentage in [0,100] for the matrix view.
type ActivationValue struct {
	kind ActivationKind
	b    bool
	n    float64
}

// Bool returns a boolean activation.
func Bool(v bool) ActivationValue {
	return ActivationValue{kind: ActivationBool, b: v}
}

// Number returns a numeric activation. NaN, infinities and negative
// numbers are outside the percentage domain and yield an invalid value;
// numbers above FullActivation are clamped to it.
func Number(v float64) ActivationValue {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0) || v < 0:
		return ActivationValue{}
	case v > FullActivation:
		v = FullActivation
	case v == 0:
		v = 0 // drop the sign of -0
	}
	return ActivationValue{kind: ActivationNumber, n: v}
}

// Kind returns the value's shape.
func (v ActivationValue) Kind() ActivationKind {
	return v.kind
}

// Truthy reports whether the rule counts as active.
func (v ActivationValue) Truthy() bool {
	switch v.kind {
	case ActivationBool:
		return v.b
	case ActivationNumber:
		return v.n != 0
	default:
		return false
	}
}

// Float returns the value as a percentage in [0,100]. Booleans map to 0
// or FullActivation; invalid values map to 0.
func (v ActivationValue) Float() float64 {
	switch v.kind {
	case ActivationBool:
		if v.b {
			return FullActivation
		}
		return 0
	case ActivationNumber:
		return v.n
	default:
		return 0
	}
}

// UnmarshalJSON accepts any JSON value. Booleans and numbers are kept as
// Bool and Number would build them; everything else becomes
// ActivationInvalid without an error.
func (v *ActivationValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("true")):
		*v = Bool(true)
	case bytes.Equal(data, []byte("false")):
		*v = Bool(false)
	case bytes.Equal(data, []byte("null")):
		*v = ActivationValue{}
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			*v = ActivationValue{}
			return nil
		}
		*v = Number(n)
	}
	return nil
}

// MarshalJSON writes booleans and numbers as-is and invalid values as null.
func (v ActivationValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ActivationBool:
		return json.Marshal(v.b)
	case ActivationNumber:
		return json.Marshal(v.Float())
	default:
		return []byte("null"), nil
	}
}

// Activation maps rule IDs to activation values. Missing entries are
// inactive with value 0.
type Activation map[string]ActivationValue

// Active reports whether the rule is active.
func (a Activation) Active(id string) bool {
	return a[id].Truthy()
}

// Value returns the rule's numeric activation, 0 when absent.
func (a Activation) Value(id string) float64 {
	return a[id].Float()
}

// Selection identifies the region and time period an activation was
// computed for.
type Selection struct {
	Region   string `json:"region"`
	Climate  string `json:"climate"` // time period, e.g. "2050"
	Ensemble string `json:"ensemble,omitempty"`
}

// Key returns a stable cache key for the selection.
func (s Selection) Key() string {
	return "activation:" + s.Region + "|" + s.Climate + "|" + s.Ensemble
}

// Valid reports whether both region and time period are set.
func (s Selection) Valid() bool {
	return s.Region != "" && s.Climate != ""
}

// ActivationSnapshot is a fetched activation kept for fallback reads.
type ActivationSnapshot struct {
	ID        string     `json:"id"`
	Selection Selection  `json:"selection"`
	Values    Activation `json:"values"`
	FetchedAt time.Time  `json:"fetchedAt"`

	// Stale is set when the rules service failed and the snapshot was
	// read back from the repository instead.
	Stale bool `json:"stale,omitempty"`
}
