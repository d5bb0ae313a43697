package trap

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/iontrap-lab/rflab/generichttp"
)

// HTTPSweep exposes a Controller over HTTP
type HTTPSweep struct {
	ctl *Controller

	RouteTable generichttp.RouteTable
}

// NewHTTPSweep wraps a controller in an HTTP adapter
func NewHTTPSweep(ctl *Controller) HTTPSweep {
	w := HTTPSweep{ctl: ctl}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodPost, Path: "/preview"}: w.preview,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/open"}:    w.toggle(Opening),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/close"}:   w.toggle(Closing),
		generichttp.MethodPath{Method: http.MethodPost, Path: "/abort"}:   w.abort,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/status"}:   w.status,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/profile"}:  w.profile,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/plot"}:     w.plot,
	}
	w.RouteTable = rt
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPSweep) RT() generichttp.RouteTable {
	return h.RouteTable
}

// httpCode maps controller errors onto status codes: operator mistakes are
// 4xx, instrument faults are 502
func httpCode(err error) int {
	var hw HardwareError
	switch {
	case errors.Is(err, ErrSweepActive), errors.Is(err, ErrNotArmed):
		return http.StatusConflict
	case errors.As(err, &hw):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func (h HTTPSweep) preview(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, err := h.ctl.Preview(req)
	if err != nil {
		http.Error(w, err.Error(), httpCode(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Println("error encoding profile:", err)
	}
}

func (h HTTPSweep) toggle(d Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.ctl.Toggle(d); err != nil {
			http.Error(w, err.Error(), httpCode(err))
			return
		}
		h.writeStatus(w)
	}
}

func (h HTTPSweep) abort(w http.ResponseWriter, r *http.Request) {
	if err := h.ctl.Abort(); err != nil {
		http.Error(w, err.Error(), httpCode(err))
		return
	}
	h.writeStatus(w)
}

func (h HTTPSweep) status(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w)
}

func (h HTTPSweep) writeStatus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.ctl.Status()); err != nil {
		log.Println("error encoding status:", err)
	}
}

func (h HTTPSweep) profile(w http.ResponseWriter, r *http.Request) {
	p := h.ctl.Profile()
	if p == nil {
		http.Error(w, "no profile armed, preview first", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Println("error encoding profile:", err)
	}
}

// InvalidateOn wraps the POST handlers of a route table so any manual write
// disarms the controller.  Used on the generator's own routes, so a power or
// frequency tweak forces a fresh preview before the next sweep.
func InvalidateOn(rt generichttp.RouteTable, ctl *Controller) generichttp.RouteTable {
	out := generichttp.RouteTable{}
	for mp, handler := range rt {
		if mp.Method == http.MethodPost {
			inner := handler
			handler = func(w http.ResponseWriter, r *http.Request) {
				inner(w, r)
				ctl.Invalidate()
			}
		}
		out[mp] = handler
	}
	return out
}
