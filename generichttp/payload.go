package generichttp

import (
	"encoding/json"
	"go/types"
	"log"
	"net/http"
)

// HumanPayload is a struct containing the basic types runtime types
// drivers work with and can self-encode to JSON over HTTP
type HumanPayload struct {
	// T holds the type of data actually contained in the payload
	T types.BasicKind

	// Bool holds a boolean
	Bool bool

	// Int holds an int
	Int int

	// Float holds a float
	Float float64

	// String holds a string
	String string
}

// EncodeAndRespond writes the payload to w as JSON with the key matching
// the wire structs below ({"f64": ...}, {"int": ...}, and so on)
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var err error
	enc := json.NewEncoder(w)
	switch hp.T {
	case types.Bool:
		err = enc.Encode(BoolT{Bool: hp.Bool})
	case types.Int:
		err = enc.Encode(IntT{Int: hp.Int})
	case types.Float64:
		err = enc.Encode(FloatT{F64: hp.Float})
	case types.String:
		err = enc.Encode(StrT{Str: hp.String})
	default:
		http.Error(w, "payload type not understood", http.StatusInternalServerError)
		return
	}
	if err != nil {
		log.Println("error encoding payload:", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// FloatT is a wire struct for a single float64
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a wire struct for a single int
type IntT struct {
	Int int `json:"int"`
}

// StrT is a wire struct for a single string
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a wire struct for a single bool
type BoolT struct {
	Bool bool `json:"bool"`
}
