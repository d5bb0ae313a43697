package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/theckman/yacspin"

	"github.com/iontrap-lab/rflab/generichttp"
	"github.com/iontrap-lab/rflab/rohdeschwarz"
	"github.com/iontrap-lab/rflab/server/middleware/locker"
	"github.com/iontrap-lab/rflab/trap"
	"github.com/iontrap-lab/rflab/util"
)

// GeneratorSetup holds the connection and safety parameters of the signal
// generator
type GeneratorSetup struct {
	// Addr holds the network or filesystem address of the instrument,
	// e.g. 192.168.1.50:5025 for a VISA socket, or /dev/ttyS4 for RS232
	Addr string `yaml:"Addr"`

	// Serial determines if the connection is serial/RS232 (true) or TCP (false)
	Serial bool `yaml:"Serial"`

	// Endpoint is the stem the generator's manual routes are served under
	Endpoint string `yaml:"Endpoint"`

	// PowerLimit, if nonzero, is written to the instrument's power limit at
	// startup, dBm.  Manual power writes above it are rejected by the
	// instrument itself.
	PowerLimit float64 `yaml:"PowerLimit"`

	// Frequency, if nonzero, is written to the carrier frequency at
	// startup, Hz
	Frequency float64 `yaml:"Frequency"`
}

// SweepSetup holds the sweep state machine parameters
type SweepSetup struct {
	// Endpoint is the stem the sweep routes are served under
	Endpoint string `yaml:"Endpoint"`

	// SettleMS is the margin added to the captured remainder when a paused
	// sweep resumes, milliseconds
	SettleMS int `yaml:"SettleMS"`
}

// Config holds the initialization parameters of the server
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr"`

	// Mock swaps the instrument for an in-memory stand-in
	Mock bool `yaml:"Mock"`

	Generator GeneratorSetup `yaml:"Generator"`

	Sweep SweepSetup `yaml:"Sweep"`
}

// rtHTTPer lets a bare route table ride through locker.Inject
type rtHTTPer struct {
	rt generichttp.RouteTable
}

func (r rtHTTPer) RT() generichttp.RouteTable { return r.rt }

// connectGenerator dials the instrument and blocks until it reports its
// startup sequence complete, with a spinner for the human watching
func connectGenerator(s GeneratorSetup) *rohdeschwarz.SMA100B {
	gen := rohdeschwarz.NewSMA100B(s.Addr, s.Serial)
	spin, err := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[59],
		Suffix:          " connecting to " + s.Addr,
		StopMessage:     "generator ready",
		StopFailMessage: "generator not responding",
	})
	if err == nil {
		spin.Start()
	}
	deadline := time.Now().Add(30 * time.Second)
	for {
		ready, err := gen.Ready()
		if err == nil && ready {
			break
		}
		if time.Now().After(deadline) {
			if spin != nil {
				spin.StopFail()
			}
			if err == nil {
				log.Fatalf("%s: startup not complete after 30s", s.Addr)
			}
			log.Fatalf("%s: %v", s.Addr, err)
		}
		time.Sleep(500 * time.Millisecond)
	}
	if spin != nil {
		spin.Stop()
	}
	return gen
}

// BuildMux connects to (or mocks) the generator and assembles the full
// route tree: manual generator routes behind the session lock, sweep routes
// beside them, and an /endpoints supergraph.
func BuildMux(c Config) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	var gen rohdeschwarz.Controller
	if c.Mock {
		gen = rohdeschwarz.NewMock()
	} else {
		gen = connectGenerator(c.Generator)
	}
	if c.Generator.PowerLimit != 0 {
		if err := gen.SetPowerLimit(c.Generator.PowerLimit); err != nil {
			log.Fatal("setting power limit: ", err)
		}
	}
	if c.Generator.Frequency != 0 {
		if err := gen.SetFrequency(c.Generator.Frequency); err != nil {
			log.Fatal("setting frequency: ", err)
		}
	}
	if err := gen.SetOutput(true); err != nil {
		log.Fatal("enabling RF output: ", err)
	}

	ctl := trap.NewController(gen)
	if c.Sweep.SettleMS > 0 {
		ctl.Settle = time.Duration(c.Sweep.SettleMS) * time.Millisecond
	}
	if c.Generator.PowerLimit != 0 {
		// -145 dBm is the bottom of the SMA100B's level range
		ctl.Limits = &util.Limiter{Min: -145, Max: c.Generator.PowerLimit}
	}

	// an active sweep session locks the generator's manual routes, and any
	// manual write disarms the previewed profile
	lock := locker.New()
	ctl.Locks = []trap.Lockable{lock}
	genRT := trap.InvalidateOn(rohdeschwarz.NewHTTPWrapper(gen).RT(), ctl)
	locker.Inject(rtHTTPer{genRT}, lock)

	genStem := generichttp.SubMuxSanitize(c.Generator.Endpoint)
	supergraph[genStem] = genRT.Endpoints()
	r := chi.NewRouter()
	r.Use(lock.Check)
	genRT.Bind(r)
	root.Mount(genStem, r)

	sweep := trap.NewHTTPSweep(ctl)
	sweepStem := generichttp.SubMuxSanitize(c.Sweep.Endpoint)
	supergraph[sweepStem] = sweep.RT().Endpoints()
	r = chi.NewRouter()
	sweep.RT().Bind(r)
	root.Mount(sweepStem, r)

	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root
}
