// Command tiermem-demo drives the runtime from the environment
// configuration surface (spec §6), runs a small synthetic allocation
// workload across a handful of goroutines standing in for
// "application threads," then shuts down and prints the profiling
// report — the demo/report CLI from SPEC_FULL.md's package map.
//
// Grounded on nmxmxh-inos_v1/cmd/inos-node/main.go's
// init→run→report structure.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nmxmxh/tiermem"
	"github.com/nmxmxh/tiermem/internal/obs"
	"github.com/nmxmxh/tiermem/internal/report"
)

func main() {
	log := obs.Default("tiermem-demo")

	rt, err := tiermem.InitFromEnv()
	if err != nil {
		log.Fatal("failed to initialize runtime", obs.Err(err))
	}
	log.Info("runtime initialized")

	runWorkload(rt, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rpt, err := rt.Shutdown(ctx)
	if err != nil {
		log.Error("shutdown reported an error", obs.Err(err))
	}

	if err := report.WriteText(os.Stdout, rpt); err != nil {
		fmt.Fprintln(os.Stderr, "write report:", err)
		os.Exit(1)
	}
}

// runWorkload allocates, touches, and frees a handful of
// differently-sized blocks from a small number of synthetic
// allocation sites across several goroutines ("application threads"),
// exercising the Alloc, Realloc and Free entry points.
func runWorkload(rt *tiermem.Runtime, log *obs.Logger) {
	const numWorkers = 4
	const sitesPerWorker = 3

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			thread, err := rt.NewThread()
			if err != nil {
				log.Warn("thread registration failed", obs.Int("worker", workerID), obs.Err(err))
				return
			}

			for s := 0; s < sitesPerWorker; s++ {
				siteID := int64(workerID*sitesPerWorker + s + 1)
				size := uint32(64 << uint(s))

				ptr, err := rt.Alloc(siteID, size, thread)
				if err != nil || ptr == 0 {
					log.Warn("alloc failed", obs.Int64("site", siteID), obs.Err(err))
					continue
				}

				ptr, err = rt.Realloc(siteID, ptr, size*2, thread)
				if err != nil {
					log.Warn("realloc failed", obs.Int64("site", siteID), obs.Err(err))
				}

				time.Sleep(5 * time.Millisecond)

				if err := rt.Free(ptr); err != nil {
					log.Warn("free failed", obs.Int64("site", siteID), obs.Err(err))
				}
			}
		}(w)
	}
	wg.Wait()
}
