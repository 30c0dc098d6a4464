package metrics

import "github.com/prometheus/client_golang/prometheus"

// HandshakesStarted counts handshake attempts by role ("leader" or
// "follower").
var HandshakesStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "keysync",
	Name:      "handshakes_started_total",
	Help:      "Number of key-sync handshakes started, by role.",
}, []string{"role"})

// HandshakesSucceeded counts handshake attempts that completed: the
// follower decrypted the secret state, or the leader sent it.
var HandshakesSucceeded = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "keysync",
	Name:      "handshakes_succeeded_total",
	Help:      "Number of key-sync handshakes that completed successfully, by role.",
}, []string{"role"})

// HandshakesFailed counts handshake attempts that aborted, labeled with
// the error kind keysync.ErrorKind assigns (transport, timeout, crypto,
// attestation_rejected, state or other).
var HandshakesFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "keysync",
	Name:      "handshakes_failed_total",
	Help:      "Number of key-sync handshakes that aborted, by role and error kind.",
}, []string{"role", "error_kind"})

func init() {
	prometheus.MustRegister(HandshakesStarted, HandshakesSucceeded, HandshakesFailed)
}
