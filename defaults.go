package domains

import stdruntime "runtime"

// defaultDomainCount mirrors the teacher's preference for leaving one
// logical CPU free for the goroutine driving the scheduler loop itself;
// here that "one loop" becomes "one domain per remaining CPU", plus the
// main domain Run always adds on top.
func defaultDomainCount() int {
	n := stdruntime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}
