// Package progress defines the listener contract the host hands to the
// core so it can surface download state to a user.
package progress

// Listener receives coarse stage changes and fine-grained percentages
// while a pipeline runs. Implementations must be safe for calls from
// other goroutines.
type Listener interface {
	// OnStage reports entering a named stage ("downloading", "cached",
	// "converting", ...).
	OnStage(stage string)
	// OnProgress reports a completion percentage in [0, 100] when the
	// extractor emits one.
	OnProgress(percent float64)
	// OnFail reports terminal failure; cleanup has already run.
	OnFail()
}

// Nop is a Listener that discards every notification.
type Nop struct{}

func (Nop) OnStage(string)     {}
func (Nop) OnProgress(float64) {}
func (Nop) OnFail()            {}
