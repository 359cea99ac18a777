package platform

import "sync"

var stackMu sync.Mutex
var stackRefs int

// AcquireStack initializes the process-wide network stack (Winsock on
// windows, a no-op elsewhere) and returns a release closure. Acquisition
// is reference-counted: the first acquire starts the stack, the last
// release tears it down. The closure is idempotent and safe to call even
// when acquisition failed partway.
func AcquireStack() (release func(), err error) {
	stackMu.Lock()
	defer stackMu.Unlock()

	if stackRefs == 0 {
		if err := stackStartup(); err != nil {
			return func() {}, err
		}
	}
	stackRefs++

	var once sync.Once
	return func() {
		once.Do(func() {
			stackMu.Lock()
			defer stackMu.Unlock()
			stackRefs--
			if stackRefs == 0 {
				stackTeardown()
			}
		})
	}, nil
}
