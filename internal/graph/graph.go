package graph

import (
	"log/slog"
	"sync"

	"github.com/mayaflux/mayaflux-go/internal/conf"
	"github.com/mayaflux/mayaflux-go/internal/logging"
)

// ChainSemantics defines how operand registrations are rewritten when a
// pipeline node is built.
type ChainSemantics uint8

const (
	// ReplaceTarget unregisters the target from its root and registers the
	// combined node instead; the source keeps its registration state.
	ReplaceTarget ChainSemantics = iota
	// PreserveBoth keeps both original registrations and adds the combined
	// node, doubling the target signal.
	PreserveBoth
	// OnlyChain unregisters both operands and registers only the combined
	// node.
	OnlyChain
)

// BinaryOpSemantics defines how operand registrations are rewritten when a
// binary op node is built.
type BinaryOpSemantics uint8

const (
	// Replace unregisters both operands and registers the combined node.
	Replace BinaryOpSemantics = iota
	// Keep preserves both operand registrations and adds the combined node.
	Keep
)

// Config carries the per-graph semantic knobs consulted by the operator
// builders.
type Config struct {
	ChainSemantics    ChainSemantics
	BinaryOpSemantics BinaryOpSemantics
}

// DefaultConfig mirrors the engine defaults: pipelines replace their target,
// binary ops replace both operands.
func DefaultConfig() Config {
	return Config{
		ChainSemantics:    ReplaceTarget,
		BinaryOpSemantics: Replace,
	}
}

type collectorKey struct {
	token   conf.ProcessingToken
	channel uint32
}

// Graph owns the root collectors of a run and implements the operator
// surface that builds structural nodes while rewriting operand
// registrations. It is the per-run context object; there is no process-wide
// graph.
type Graph struct {
	mu         sync.RWMutex
	collectors map[collectorKey]*RootCollector
	cfg        Config

	defaultToken   conf.ProcessingToken
	defaultChannel uint32

	logger *slog.Logger
}

// NewGraph constructs an empty graph routing operators to the audio-rate
// domain, channel 0, by default.
func NewGraph(cfg Config) *Graph {
	logger := logging.ForService("graph")
	if logger == nil {
		logger = slog.Default()
	}

	return &Graph{
		collectors:   make(map[collectorKey]*RootCollector),
		cfg:          cfg,
		defaultToken: conf.TokenAudioRate,
		logger:       logger,
	}
}

// SetDefaultRoute changes where operator-built nodes register.
func (g *Graph) SetDefaultRoute(token conf.ProcessingToken, channel uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.defaultToken = token
	g.defaultChannel = channel
}

// Collector returns the root collector for (token, channel), creating it on
// first use.
func (g *Graph) Collector(token conf.ProcessingToken, channel uint32) *RootCollector {
	key := collectorKey{token: token, channel: channel}

	g.mu.RLock()
	rc, ok := g.collectors[key]
	g.mu.RUnlock()
	if ok {
		return rc
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if rc, ok = g.collectors[key]; ok {
		return rc
	}
	rc = NewRootCollector(token, channel)
	g.collectors[key] = rc
	g.logger.Debug("root collector created",
		"token", token.String(),
		"channel", channel)
	return rc
}

// RegisterNode adds a node to the collector of (token, channel).
func (g *Graph) RegisterNode(n Node, token conf.ProcessingToken, channel uint32) {
	g.Collector(token, channel).RegisterNode(n)
}

// UnregisterNode removes a node from the collector of (token, channel).
func (g *Graph) UnregisterNode(n Node, token conf.ProcessingToken, channel uint32) {
	g.Collector(token, channel).UnregisterNode(n)
}

// RegisterAudioNode adds a node to the default route.
func (g *Graph) RegisterAudioNode(n Node) {
	g.mu.RLock()
	token, channel := g.defaultToken, g.defaultChannel
	g.mu.RUnlock()
	g.RegisterNode(n, token, channel)
}

// UnregisterAudioNode removes a node from the default route.
func (g *Graph) UnregisterAudioNode(n Node) {
	g.mu.RLock()
	token, channel := g.defaultToken, g.defaultChannel
	g.mu.RUnlock()
	g.UnregisterNode(n, token, channel)
}

func (g *Graph) defaultCollector() *RootCollector {
	g.mu.RLock()
	token, channel := g.defaultToken, g.defaultChannel
	g.mu.RUnlock()
	return g.Collector(token, channel)
}

// Pipe builds source >> target and rewrites registrations on the default
// route according to the graph's chain semantics.
func (g *Graph) Pipe(source, target Node) *ChainNode {
	chain := NewChain(source, target)
	rc := g.defaultCollector()

	switch g.cfg.ChainSemantics {
	case ReplaceTarget:
		rc.UnregisterNode(target)
		rc.RegisterNode(chain)
	case PreserveBoth:
		rc.RegisterNode(chain)
	case OnlyChain:
		rc.UnregisterNode(source)
		rc.UnregisterNode(target)
		rc.RegisterNode(chain)
	}

	return chain
}

// Add builds a + b and rewrites registrations on the default route according
// to the graph's binary-op semantics.
func (g *Graph) Add(a, b Node) *BinaryOpNode {
	return g.binaryOp(a, b, func(x, y Sample) Sample { return x + y })
}

// Mul builds a * b and rewrites registrations on the default route according
// to the graph's binary-op semantics.
func (g *Graph) Mul(a, b Node) *BinaryOpNode {
	return g.binaryOp(a, b, func(x, y Sample) Sample { return x * y })
}

// Scale builds node * scalar through a constant operand; the constant is
// never registered, so only the source's registration is rewritten.
func (g *Graph) Scale(n Node, scalar Sample) *BinaryOpNode {
	k := NewConstant(scalar)
	combined := NewBinaryOp(n, k, func(x, y Sample) Sample { return x * y })
	rc := g.defaultCollector()

	if g.cfg.BinaryOpSemantics == Replace {
		rc.UnregisterNode(n)
	}
	rc.RegisterNode(combined)

	return combined
}

func (g *Graph) binaryOp(a, b Node, combine CombineFunc) *BinaryOpNode {
	combined := NewBinaryOp(a, b, combine)
	rc := g.defaultCollector()

	if g.cfg.BinaryOpSemantics == Replace {
		rc.UnregisterNode(a)
		rc.UnregisterNode(b)
	}
	rc.RegisterNode(combined)

	return combined
}
