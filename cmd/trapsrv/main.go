package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "trapsrv.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr: ":8000",
		Generator: GeneratorSetup{
			Addr:     "192.168.1.50:5025",
			Endpoint: "/rf",
		},
		Sweep: SweepSetup{
			Endpoint: "/trap",
			SettleMS: 1000,
		}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Printf("malformed config, loading partially: %v", err)
		}
	}
}

func root() {
	str := `trapsrv drives an R&S SMA100B RF signal generator to open and close an ion
trap.  It computes power ramps from a formula, stages them as list-sweep
programs on the instrument, and exposes the generator and the sweep state
machine over HTTP.

Usage:
	trapsrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `trapsrv is amenable to configuration via its .yaml file.  For a primer on YAML,
see https://yaml.org/start.html

Without a configuration the server uses built-in defaults; run "mkconf" to
write them out and edit from there.

Generator.Addr is the VISA socket of the instrument, e.g. 192.168.1.50:5025,
or a serial device path with Serial: true.  Mock: true swaps the instrument
for an in-memory stand-in so the sweep machinery can be exercised on a desk
with no hardware.

The generator's manual routes (power, frequency, output) are served under
Generator.Endpoint and are locked (HTTP 423) while a sweep session is
active.  The sweep routes (preview, open, close, status, plot) are served
under Sweep.Endpoint and are never locked, so a running sweep can always be
paused.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("trapsrv version %v\n", Version)
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	mux := BuildMux(c)
	log.Println("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
