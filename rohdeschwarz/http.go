package rohdeschwarz

import (
	"encoding/json"
	"net/http"

	"github.com/iontrap-lab/rflab/generichttp"
)

// HTTPWrapper provides HTTP bindings on top of the underlying Go interface.
// RT must be bound to a router for it to serve anything.
type HTTPWrapper struct {
	// Controller is the underlying generator that is wrapped
	Controller

	// RouteTable maps method-paths to handlers
	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a new HTTP wrapper with the route table
// pre-configured
func NewHTTPWrapper(c Controller) HTTPWrapper {
	w := HTTPWrapper{Controller: c}
	rt := generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/power"}:        generichttp.GetFloat(c.GetPower),
		{Method: http.MethodPost, Path: "/power"}:       generichttp.SetFloat(c.SetPower),
		{Method: http.MethodGet, Path: "/power-limit"}:  generichttp.GetFloat(c.GetPowerLimit),
		{Method: http.MethodPost, Path: "/power-limit"}: generichttp.SetFloat(c.SetPowerLimit),
		{Method: http.MethodGet, Path: "/frequency"}:    generichttp.GetFloat(c.GetFrequency),
		{Method: http.MethodPost, Path: "/frequency"}:   generichttp.SetFloat(c.SetFrequency),
		{Method: http.MethodGet, Path: "/output"}:       generichttp.GetBool(c.GetOutput),
		{Method: http.MethodPost, Path: "/output"}:      generichttp.SetBool(c.SetOutput),
		{Method: http.MethodGet, Path: "/ready"}:        generichttp.GetBool(c.Ready),
		{Method: http.MethodGet, Path: "/list-index"}:   generichttp.GetInt(c.GetListIndex),
	}
	if s, ok := c.(*SMA100B); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/idn"}] = generichttp.GetString(s.Idn)
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/raw"}] = rawComm(s)
	}
	w.RouteTable = rt
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// rawComm passes {"str": ...} through to the SCPI layer for debugging at
// the bench; queries get {"str": response} back
func rawComm(s *SMA100B) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := generichttp.StrT{}
		err := json.NewDecoder(r.Body).Decode(&in)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp, err := s.Raw(in.Str)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(generichttp.StrT{Str: resp})
	}
}
