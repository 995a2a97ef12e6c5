package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// startProfiling starts a CPU profile and an execution trace for each
// non-empty path. The returned function stops both.
func startProfiling(cpuprofile, execprofile string) (func(), error) {
	var stops []func()
	stop := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}

	if execprofile != "" {
		f, err := os.Create(execprofile)
		if err != nil {
			return nil, fmt.Errorf("could not create trace execution profile: %w", err)
		}
		if err := trace.Start(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("could not start trace execution profile: %w", err)
		}
		stops = append(stops, func() {
			trace.Stop()
			f.Close()
		})
	}

	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			stop()
			return nil, fmt.Errorf("could not create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			stop()
			return nil, fmt.Errorf("could not start CPU profile: %w", err)
		}
		stops = append(stops, func() {
			pprof.StopCPUProfile()
			f.Close()
		})
	}

	return stop, nil
}

// writeMemProfile writes a heap profile to path if it is not empty.
func writeMemProfile(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create memory profile: %w", err)
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("could not write memory profile: %w", err)
	}
	return nil
}
