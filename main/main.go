package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/pkg/profile"

	"github.com/phil-mansfield/particles/io"
)

func main() {
	var (
		transferFile  string
		exampleConfig string
	)
	vars := map[string]*string{
		"Transfer":      &transferFile,
		"ExampleConfig": &exampleConfig,
	}

	flag.StringVar(
		&transferFile, "Transfer", "",
		"Configuration file for [Transfer] mode.",
	)
	flag.StringVar(
		&exampleConfig,
		"ExampleConfig", "", "Prints an example configuration file of the "+
			"specified type to stdout. The only accepted argument is 'Transfer'.",
	)

	flag.Parse()

	modeName, err := getModeName(vars)
	if err != nil { log.Fatal(err.Error()) }

	switch modeName {
	case "Transfer":
		if err := runTransfer(transferFile); err != nil {
			log.Fatal(err.Error())
		}

	case "ExampleConfig":
		switch exampleConfig {
		case "Transfer":
			fmt.Println(io.ExampleTransferFile)
		default:
			log.Fatal(
				"Unrecognized 'ExampleConfig' argument. The only recognized " +
					"argument is 'Transfer'.",
			)
		}
	default:
		panic("Impossible")
	}
}

// runTransfer runs the driver described by the config file fname. Logging
// and profiling are shut down before it returns, even on failure, so that
// the log and profile of a failed run are complete.
func runTransfer(fname string) error {
	con, err := io.ReadTransferConfig(fname)
	if err != nil { return err }

	if con.LogFile != "" {
		f, err := os.Create(con.LogFile)
		if err != nil { return err }
		log.SetOutput(f)
		defer func() {
			log.SetOutput(os.Stderr)
			f.Close()
		}()
	}

	if con.ProfileMode != "" {
		defer startProfile(con).Stop()
	}

	sum, err := transferMain(con)
	if err != nil {
		log.Printf("Transfer failed: %s", err)
		return err
	}
	log.Printf(
		"Sent %d particles in %d frames (%d bytes), kept %d.",
		sum.Sent, sum.Frames, sum.Bytes, sum.Kept,
	)
	return nil
}

func startProfile(con *io.TransferConfig) interface{ Stop() } {
	opts := []func(*profile.Profile){profile.NoShutdownHook}
	if con.ProfileDir != "" {
		opts = append(opts, profile.ProfilePath(con.ProfileDir))
	}

	switch con.ProfileMode {
	case "cpu":
		opts = append(opts, profile.CPUProfile)
	case "mem":
		opts = append(opts, profile.MemProfileAllocs)
	}
	return profile.Start(opts...)
}

func getModeName(vars map[string]*string) (string, error) {
	setNames := []string{}

	for name, varPtr := range vars {
		if *varPtr != "" { setNames = append(setNames, name) }
	}

	if len(setNames) == 0 {
		return "", fmt.Errorf("No flags have been set.")
	}

	if len(setNames) > 1 {
		return "", fmt.Errorf(
			"The following flags were set: %s, but particles_cmd "+
				"only accepts one flag at a time.",
			strings.Join(setNames, ", "),
		)
	}

	return setNames[0], nil
}
