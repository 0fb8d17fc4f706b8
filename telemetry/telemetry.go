// Package telemetry carries diagnostic numbers and log lines out of the swerve actuators.
package telemetry

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// Verbosity controls how much diagnostic output is produced. Levels are ordered.
type Verbosity int

// Verbosity levels, least to most output.
const (
	None Verbosity = iota
	Low
	Info
	High
	Machine
)

var verbosityNames = map[Verbosity]string{
	None:    "none",
	Low:     "low",
	Info:    "info",
	High:    "high",
	Machine: "machine",
}

func (v Verbosity) String() string {
	if name, ok := verbosityNames[v]; ok {
		return name
	}
	return "unknown"
}

// ParseVerbosity parses a level name. The empty string is Info.
func ParseVerbosity(s string) (Verbosity, error) {
	if s == "" {
		return Info, nil
	}
	for v, name := range verbosityNames {
		if strings.EqualFold(s, name) {
			return v, nil
		}
	}
	return None, errors.Errorf("unknown telemetry verbosity %q", s)
}

// A Sink receives telemetry. Log lines go to the persistent log; Print lines go to the live
// console.
type Sink interface {
	Verbosity() Verbosity
	PutNumber(key string, value float64)
	Log(line string)
	Print(line string)
}

// Publisher is a Sink backed by an rdk logger. It keeps the last value published under each
// key so it can be read back.
type Publisher struct {
	mu        sync.Mutex
	verbosity Verbosity
	numbers   map[string]float64
	log       logging.Logger
	console   logging.Logger
}

// NewPublisher returns a Publisher logging through logger.
func NewPublisher(verbosity Verbosity, logger logging.Logger) *Publisher {
	return &Publisher{
		verbosity: verbosity,
		numbers:   map[string]float64{},
		log:       logger,
		console:   logger.Sublogger("console"),
	}
}

// Verbosity returns the configured level.
func (p *Publisher) Verbosity() Verbosity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.verbosity
}

// SetVerbosity changes the level.
func (p *Publisher) SetVerbosity(v Verbosity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verbosity = v
}

// PutNumber records a value.
func (p *Publisher) PutNumber(key string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.numbers[key] = value
	if p.verbosity >= Machine {
		p.log.Debugf("%s = %v", key, value)
	}
}

// Number returns the last value recorded under key.
func (p *Publisher) Number(key string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.numbers[key]
	return v, ok
}

// Snapshot returns a copy of every recorded value.
func (p *Publisher) Snapshot() map[string]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]float64, len(p.numbers))
	for k, v := range p.numbers {
		out[k] = v
	}
	return out
}

// Keys returns the recorded keys in order.
func (p *Publisher) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.numbers))
	for k := range p.numbers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Log writes a line to the persistent log.
func (p *Publisher) Log(line string) {
	p.log.Info(line)
}

// Print writes a line to the console.
func (p *Publisher) Print(line string) {
	p.console.Info(line)
}
