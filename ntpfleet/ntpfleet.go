// Package ntpfleet is the core of the ntpfleet supervisor, providing the
// individual components that turn one opaque time daemon executable into a
// supervised fleet of daemon instances.
//
// Mechanism of Operation
//
// Capability Probing
//
// Before anything is launched, the daemon executable is asked for its version
// once. The reported major.minor pair is mapped through a fixed floor table to
// the set of protocol extension flags it supports; versions below the floor
// abort the whole run before a single instance exists. Unknown newer versions
// are assumed to support the full set.
//
// Topology Planning
//
// A Topology describes the requested shape of the fleet: either N
// interchangeable instances sharing one public port (the kernel distributes
// inbound traffic across them), or a hierarchy of private relay instances that
// sync upstream plus public server instances that source time from the relay.
// Planning produces an ordered list of InstancePlans, each with its own
// pidfile and control socket under the run directory. The plan order is the
// launch order; nothing afterwards depends on ordering.
//
// Pidfiles
//
// Each daemon instance writes its own pidfile. The supervisor treats a
// missing, empty, or garbled pidfile as "not ready yet" and discovers the
// instance's PID by watching the run directory (with a polling fallback) under
// a hard deadline. The pidfile is how an external CPU limiter finds its target
// and how a later supervisor invocation finds leftovers of a dead one.
//
// The run directory tree may look like this:
//
//    - /run/ntpfleet/
//        - ntp1.pid
//        - ntp1.sock
//        - ntp2.pid
//        - ntp2.sock
//
// Lifecycle
//
// The Supervisor owns every launched instance. Launch attempts every plan and
// reports per-instance failures instead of aborting the survivors; a single
// termination request, no matter how often it is delivered, interrupts the
// whole fleet once, waits out a bounded grace period, SIGKILLs stragglers, and
// scrubs pidfiles and control sockets so nothing is leaked on any exit path.
package ntpfleet
