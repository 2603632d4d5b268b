// Package features enthält Hilfsprogramme rund um den Demo-Server:
// einen Supervisor für den Serverprozess und einen CPU-Lastgenerator.
package features

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// rounds pro Durchlauf, danach wird ctx geprüft
const rounds = 10000

// BurnCPU hält workers Goroutinen mit Rechenarbeit beschäftigt, bis ctx beendet ist,
// und gibt die Zahl der abgeschlossenen Durchläufe zurück. workers <= 0 nimmt runtime.NumCPU().
func BurnCPU(ctx context.Context, workers int) uint64 {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logrus.Infof("LOAD: starting %d worker(s)", workers)

	var (
		wg     sync.WaitGroup
		passes atomic.Uint64
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var sink int64
			for ctx.Err() == nil {
				sink += burn()
				passes.Add(1)
			}
			_ = sink
		}()
	}
	wg.Wait()

	logrus.Infof("LOAD: stopped after %d passes", passes.Load())
	return passes.Load()
}

func burn() int64 {
	i := int64(1)
	for a := int64(0); a < rounds; a++ {
		i = a * i
		i = int64(float64(a*i) / 3.14)
	}
	return i
}
