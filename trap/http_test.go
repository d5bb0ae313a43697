package trap_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/iontrap-lab/rflab/generichttp"
	"github.com/iontrap-lab/rflab/trap"
)

func sweepRouter(ctl *trap.Controller) chi.Router {
	r := chi.NewRouter()
	trap.NewHTTPSweep(ctl).RT().Bind(r)
	return r
}

func TestHTTPPreviewArmsAndServesProfile(t *testing.T) {
	ctl := trap.NewController(newFakeSweeper())
	r := sweepRouter(ctl)

	body, _ := json.Marshal(quickReq())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/preview", bytes.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("preview returned %d: %s", w.Code, w.Body.String())
	}
	var p trap.Profile
	if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.StepCount() != 3 {
		t.Errorf("expected 3 steps in the previewed profile, got %d", p.StepCount())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	var s trap.Status
	if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if !s.Armed || s.Phase != "idle" {
		t.Errorf("expected armed idle status, got %+v", s)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plot", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("plot returned %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("plot content type %s, expected text/html", ct)
	}
}

func TestHTTPErrorMapping(t *testing.T) {
	ctl := trap.NewController(newFakeSweeper())
	r := sweepRouter(ctl)

	// toggling with nothing armed is an operator mistake, not a server fault
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/open", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("unarmed toggle returned %d, expected 409", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/profile", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("profile with nothing armed returned %d, expected 404", w.Code)
	}

	// a request the computer rejects is a 400
	bad := quickReq()
	bad.OpenVoltage = 99
	body, _ := json.Marshal(bad)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/preview", bytes.NewReader(body)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid preview returned %d, expected 400", w.Code)
	}
}

func TestInvalidateOnManualWrite(t *testing.T) {
	ctl := trap.NewController(newFakeSweeper())
	if _, err := ctl.Preview(quickReq()); err != nil {
		t.Fatal(err)
	}
	noop := func(w http.ResponseWriter, r *http.Request) {}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodPost, Path: "/power"}: noop,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/power"}:  noop,
	}
	r := chi.NewRouter()
	trap.InvalidateOn(rt, ctl).Bind(r)

	// reads do not disarm
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/power", nil))
	if !ctl.Status().Armed {
		t.Fatal("a read disarmed the controller")
	}
	// writes do
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/power", nil))
	if ctl.Status().Armed {
		t.Error("a manual write left the controller armed")
	}
}
