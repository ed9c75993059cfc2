/*Package io contains the configuration files and input tables read by the
particles_cmd driver.
*/
package io

import (
	"fmt"
	"runtime"
	"strings"

	"gopkg.in/gcfg.v1"
)

const (
	ExampleTransferFile = `[Transfer]

#######################
# Required Parameters #
#######################

# Dimension of the reference cells and of the space the particles live in.
# SpaceDim must be at least as large as Dim.
Dim = 2
SpaceDim = 2

# Number of float64 properties stored for every particle. Set this to -1 to
# transfer particles without a property pool at all.
Properties = 2

# Number of randomly placed particles to create. Ignored if Input is set.
Particles = 100000

#######################
# Optional Parameters #
#######################

# A whitespace-separated text table to read particles from instead of
# generating them. Columns are: id, SpaceDim location components, Dim
# reference location components, Properties properties.
# Input = path/to/particles.txt

# Seed for the random particle generator. Default is 0.
# Seed = 1

# Particles whose first location component is at least SplitAt are sent to
# the destination pool; the rest stay behind. Default is 0.5.
# SplitAt = 0.5

# Maximum number of particles in a single transfer frame. Default is 4096.
# BufferParticles = 4096

# Number of goroutines used to encode frames. Default is the number of logical
# cores.
# Workers = 8

# Output files which are useful for profiling and debugging. Generally, there
# isn't a reason to use these unless something goes wrong. ProfileMode may be
# one of [ cpu | mem ], and profiles are written to ProfileDir.
# ProfileMode = cpu
# ProfileDir = prof
# LogFile = log.out

# Prometheus text-format metrics describing the pools and transfers.
# MetricsFile = particles.prom

# Scatter plot of the received particle locations.
# PlotFile = received.png`
)

// TransferConfig describes a single run of the transfer driver.
type TransferConfig struct {
	// Required
	Dim, SpaceDim int
	Properties    int
	Particles     int

	// Optional
	Input           string
	Seed            int64
	SplitAt         float64
	BufferParticles int
	Workers         int

	ProfileMode, ProfileDir string
	LogFile                 string
	MetricsFile             string
	PlotFile                string
}

// TransferWrapper is the top-level structure of a transfer config file.
type TransferWrapper struct {
	Transfer TransferConfig
}

// DefaultTransferWrapper returns a wrapper with every optional value set to
// its default.
func DefaultTransferWrapper() *TransferWrapper {
	con := TransferConfig{}
	con.Dim = -1
	con.SpaceDim = -1
	con.Properties = -2
	con.SplitAt = 0.5
	con.BufferParticles = 4096
	con.Workers = runtime.NumCPU()
	return &TransferWrapper{con}
}

// ReadTransferConfig reads the config file fname and checks its values.
func ReadTransferConfig(fname string) (*TransferConfig, error) {
	wrap := DefaultTransferWrapper()
	if err := gcfg.ReadFileInto(wrap, fname); err != nil { return nil, err }
	con := &wrap.Transfer
	if err := con.CheckInit(); err != nil { return nil, err }
	return con, nil
}

// ParseTransferConfig is ReadTransferConfig for config text held in memory.
func ParseTransferConfig(text string) (*TransferConfig, error) {
	wrap := DefaultTransferWrapper()
	if err := gcfg.ReadStringInto(wrap, text); err != nil { return nil, err }
	con := &wrap.Transfer
	if err := con.CheckInit(); err != nil { return nil, err }
	return con, nil
}

func (con *TransferConfig) ValidDim() bool { return con.Dim >= 1 }

func (con *TransferConfig) ValidSpaceDim() bool {
	return con.SpaceDim >= con.Dim && con.SpaceDim >= 1
}

func (con *TransferConfig) ValidProperties() bool { return con.Properties >= -1 }

func (con *TransferConfig) ValidParticles() bool { return con.Particles > 0 }

func (con *TransferConfig) ValidInput() bool { return con.Input != "" }

func (con *TransferConfig) ValidBufferParticles() bool {
	return con.BufferParticles > 0
}

func (con *TransferConfig) ValidWorkers() bool { return con.Workers > 0 }

func (con *TransferConfig) ValidProfileMode() bool {
	switch con.ProfileMode {
	case "", "cpu", "mem":
		return true
	}
	return false
}

// HasProperties returns true if the particles carry a property pool.
func (con *TransferConfig) HasProperties() bool { return con.Properties >= 0 }

// CheckInit normalizes con and returns a descriptive error if any of its
// values are invalid.
func (con *TransferConfig) CheckInit() error {
	con.ProfileMode = strings.ToLower(strings.Trim(con.ProfileMode, " "))

	switch {
	case !con.ValidDim():
		return fmt.Errorf("Invalid/non-existent 'Dim' value, %d.", con.Dim)
	case !con.ValidSpaceDim():
		return fmt.Errorf(
			"'SpaceDim' must be at least 'Dim' (%d), but is %d.",
			con.Dim, con.SpaceDim,
		)
	case !con.ValidProperties():
		return fmt.Errorf(
			"Invalid/non-existent 'Properties' value, %d.", con.Properties,
		)
	case !con.ValidInput() && !con.ValidParticles():
		return fmt.Errorf("You must set either a valid 'Particles' or 'Input'.")
	case !con.ValidBufferParticles():
		return fmt.Errorf(
			"'BufferParticles' must be positive, but is %d.", con.BufferParticles,
		)
	case !con.ValidWorkers():
		return fmt.Errorf("'Workers' must be positive, but is %d.", con.Workers)
	case !con.ValidProfileMode():
		return fmt.Errorf(
			"'ProfileMode' must be one of [cpu | mem]. '%s' is not recognized.",
			con.ProfileMode,
		)
	}
	return nil
}
