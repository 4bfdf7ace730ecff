// Package prof exposes runtime profiles of the bluebox daemon.
//
// [Register] mounts the [net/http/pprof] handlers under /debug/pprof/ on a
// mux, normally the one serving /metrics:
//
//	mux := http.NewServeMux()
//	mux.Handle("/metrics", metrics.Handler(reg))
//	prof.Register(mux)
//
// CPU profiles are written to a file between [StartCPU] and [StopCPU]:
//
//	if err := prof.StartCPU("cpu.pprof"); err != nil {
//	    return err
//	}
//	defer prof.StopCPU()
//
// Snapshot profiles (heap, goroutine, block, mutex) are written with
// [WriteTo]. Block and mutex profiles stay empty until enabled with
// [SetBlockProfileRate] and [SetMutexProfileFraction].
package prof
