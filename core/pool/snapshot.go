package pool

// Snapshot is a point-in-time copy of the pool counters, taken fresh for
// every rejection and never cached.
type Snapshot struct {
	PoolSize    int
	Active      int
	Core        int
	Max         int
	Largest     int
	Tasks       int64
	Completed   int64
	Shutdown    bool
	Terminated  bool
	Terminating bool
}
