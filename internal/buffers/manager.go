package buffers

import (
	"log/slog"
	"sync"

	"github.com/mayaflux/mayaflux-go/internal/conf"
	"github.com/mayaflux/mayaflux-go/internal/errors"
	"github.com/mayaflux/mayaflux-go/internal/graph"
	"github.com/mayaflux/mayaflux-go/internal/logging"
	"github.com/mayaflux/mayaflux-go/internal/observability"
)

// RootProcessingFunc replaces the per-channel loop body for a token domain.
type RootProcessingFunc func(roots []*RootAudioBuffer, frames uint32)

// suppliedBuffer is an external buffer mixed into a channel's root at the
// end of the chain but before final processing.
type suppliedBuffer struct {
	buffer *AudioBuffer
	mix    Sample
}

// domainUnit holds one processing token's root buffers, channel chains, and
// sizing.
type domainUnit struct {
	rootBuffers   []*RootAudioBuffer
	channelChains []*ProcessingChain
	supplied      [][]suppliedBuffer
	custom        RootProcessingFunc
	channelCount  uint32
	bufferSize    uint32
}

// Manager owns all buffer chains, channels, and token domains and drives a
// processing cycle. It is the front door for the audio callback: the
// callback calls ProcessToken and the interleave bridge, nothing else.
type Manager struct {
	mu sync.Mutex

	defaultToken conf.ProcessingToken
	units        map[conf.ProcessingToken]*domainUnit
	globalChain  *ProcessingChain
	graph        *graph.Graph

	inputBuffers   []*AudioBuffer
	inputListeners map[uint32][]*AudioBuffer

	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewManager constructs the manager with a default domain sized from the
// stream settings. The final limiter is installed on every root created.
func NewManager(settings *conf.Settings, g *graph.Graph, metrics *observability.Metrics) *Manager {
	logger := logging.ForService("buffers")
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "buffer_manager")

	m := &Manager{
		defaultToken:   conf.TokenAudioBackend,
		units:          make(map[conf.ProcessingToken]*domainUnit),
		globalChain:    NewProcessingChain(),
		graph:          g,
		inputListeners: make(map[uint32][]*AudioBuffer),
		metrics:        metrics,
		logger:         logger,
	}

	out := settings.Stream.Output
	if out.Enabled && out.Channels > 0 {
		unit := m.createUnit(conf.TokenAudioBackend, settings.Stream.BufferSize)
		m.growChannels(conf.TokenAudioBackend, unit, out.Channels)
	}

	in := settings.Stream.Input
	if in.Enabled && in.Channels > 0 {
		m.setupInputBuffers(in.Channels, settings.Stream.BufferSize)
	}

	logger.Info("buffer manager created",
		"out_channels", out.Channels,
		"in_channels", in.Channels,
		"buffer_size", settings.Stream.BufferSize)

	return m
}

// DefaultToken returns the manager's default processing token.
func (m *Manager) DefaultToken() conf.ProcessingToken { return m.defaultToken }

// GlobalChain returns the chain applied to every root after its channel
// chain.
func (m *Manager) GlobalChain() *ProcessingChain { return m.globalChain }

// Graph returns the node graph the manager drives.
func (m *Manager) Graph() *graph.Graph { return m.graph }

func (m *Manager) createUnit(token conf.ProcessingToken, bufferSize uint32) *domainUnit {
	unit := &domainUnit{bufferSize: bufferSize}
	m.units[token] = unit
	return unit
}

// growChannels extends a unit to the requested channel count, creating root
// buffers, channel chains, and the final limiter for each new channel.
func (m *Manager) growChannels(token conf.ProcessingToken, unit *domainUnit, count uint32) {
	for ch := unit.channelCount; ch < count; ch++ {
		collector := m.graph.Collector(token, ch)
		root := NewRootAudioBuffer(ch, unit.bufferSize, collector)

		rootChain := NewProcessingChain()
		rootChain.AddFinalProcessor(NewFinalLimiter(), &root.AudioBuffer)
		root.SetChain(rootChain)

		unit.rootBuffers = append(unit.rootBuffers, root)
		unit.channelChains = append(unit.channelChains, NewProcessingChain())
		unit.supplied = append(unit.supplied, nil)
	}
	if count > unit.channelCount {
		unit.channelCount = count
	}
}

// unitFor fetches a token's unit, optionally autocreating it when the token
// permits.
func (m *Manager) unitFor(token conf.ProcessingToken, autocreate bool) (*domainUnit, error) {
	unit, ok := m.units[token]
	if ok {
		return unit, nil
	}
	if !autocreate || !token.AllowsChannelAutocreate() {
		return nil, errors.Newf("processing domain %s not initialized", token.String()).
			Component(ComponentBuffers).
			Category(errors.CategoryDomainState).
			Context("token", token.String()).
			Build()
	}
	return m.createUnit(token, defaultBufferSize), nil
}

const defaultBufferSize = 512

// InitDomain explicitly creates a token domain with the given channel count
// and buffer size. Required before use for non-audio tokens.
func (m *Manager) InitDomain(token conf.ProcessingToken, channels, bufferSize uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	unit, ok := m.units[token]
	if !ok {
		unit = m.createUnit(token, bufferSize)
	}
	unit.bufferSize = bufferSize
	m.growChannels(token, unit, channels)
}

// ActiveTokens lists the tokens with initialized units.
func (m *Manager) ActiveTokens() []conf.ProcessingToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens := make([]conf.ProcessingToken, 0, len(m.units))
	for token := range m.units {
		tokens = append(tokens, token)
	}
	return tokens
}

// NumChannels returns a token's channel count.
func (m *Manager) NumChannels(token conf.ProcessingToken) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, err := m.unitFor(token, false)
	if err != nil {
		return 0, err
	}
	return unit.channelCount, nil
}

// BufferSize returns a token's frames-per-cycle.
func (m *Manager) BufferSize(token conf.ProcessingToken) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, err := m.unitFor(token, false)
	if err != nil {
		return 0, err
	}
	return unit.bufferSize, nil
}

// RootBuffer returns the root buffer of (token, channel).
func (m *Manager) RootBuffer(token conf.ProcessingToken, channel uint32) (*RootAudioBuffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rootBufferLocked(token, channel)
}

func (m *Manager) rootBufferLocked(token conf.ProcessingToken, channel uint32) (*RootAudioBuffer, error) {
	unit, err := m.unitFor(token, false)
	if err != nil {
		return nil, err
	}
	if channel >= unit.channelCount {
		return nil, m.outOfRange("root_buffer", token, channel, unit.channelCount)
	}
	return unit.rootBuffers[channel], nil
}

func (m *Manager) outOfRange(op string, token conf.ProcessingToken, channel, count uint32) error {
	return errors.Newf("channel %d out of range (domain %s has %d channels)", channel, token.String(), count).
		Component(ComponentBuffers).
		Category(errors.CategoryOutOfRange).
		Context("operation", op).
		Context("token", token.String()).
		Context("channel", channel).
		Build()
}

// ChannelChain returns the processing chain of (token, channel).
func (m *Manager) ChannelChain(token conf.ProcessingToken, channel uint32) (*ProcessingChain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, err := m.unitFor(token, false)
	if err != nil {
		return nil, err
	}
	if channel >= unit.channelCount {
		return nil, m.outOfRange("channel_chain", token, channel, unit.channelCount)
	}
	return unit.channelChains[channel], nil
}

// RegisterTokenProcessor installs a custom per-domain processor that
// replaces the default channel loop for token.
func (m *Manager) RegisterTokenProcessor(token conf.ProcessingToken, fn RootProcessingFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, err := m.unitFor(token, true)
	if err != nil {
		return err
	}
	unit.custom = fn
	return nil
}

// ProcessToken runs one cycle of frames samples for every channel in the
// token's domain. A registered custom processor replaces the loop body.
func (m *Manager) ProcessToken(token conf.ProcessingToken, frames uint32) error {
	m.mu.Lock()
	unit, err := m.unitFor(token, false)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	custom := unit.custom
	roots := unit.rootBuffers
	m.mu.Unlock()

	if custom != nil {
		custom(roots, frames)
		m.metrics.ObserveCycle(token.String(), int(frames))
		return nil
	}

	for ch := range roots {
		if err := m.ProcessChannel(token, uint32(ch), frames, nil); err != nil {
			return err
		}
	}

	m.metrics.ObserveCycle(token.String(), int(frames))
	return nil
}

// ProcessChannel runs one cycle for a single channel. nodeOutput, when
// non-nil, is mixed into the root before children and collectors.
func (m *Manager) ProcessChannel(token conf.ProcessingToken, channel, frames uint32, nodeOutput []Sample) error {
	m.mu.Lock()
	unit, err := m.unitFor(token, false)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if channel >= unit.channelCount {
		m.mu.Unlock()
		return m.outOfRange("process_channel", token, channel, unit.channelCount)
	}
	root := unit.rootBuffers[channel]
	channelChain := unit.channelChains[channel]
	supplied := unit.supplied[channel]
	m.mu.Unlock()

	root.Clear()

	if nodeOutput != nil {
		data := root.Data()
		n := min(len(nodeOutput), len(data))
		copy(data[:n], nodeOutput[:n])
		root.MarkDataForCycle()
	}

	for _, child := range root.Children() {
		if child.NeedsDefaultProcessing() {
			child.ProcessDefault()
		}
		if chain := child.Chain(); chain != nil && child.HasDataForCycle() {
			chain.Process(child)
		}
	}

	root.ProcessDefault()
	channelChain.Process(&root.AudioBuffer)
	m.globalChain.Process(&root.AudioBuffer)

	for _, s := range supplied {
		data := root.Data()
		src := s.buffer.Data()
		n := min(len(src), len(data))
		for i := 0; i < n; i++ {
			data[i] += src[i] * s.mix
		}
	}

	if chain := root.Chain(); chain != nil {
		chain.ProcessFinal(&root.AudioBuffer)
	}

	return nil
}

// AddAudioBuffer attaches buf as a child of (token, channel)'s root. The
// buffer's channel id is assigned, its chain merged into the channel chain,
// and missing audio-domain channels are created up to the index.
func (m *Manager) AddAudioBuffer(buf *AudioBuffer, token conf.ProcessingToken, channel uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	unit, err := m.unitFor(token, true)
	if err != nil {
		return err
	}
	if channel >= unit.channelCount {
		if !token.AllowsChannelAutocreate() {
			return errors.Newf("channel %d absent from domain %s", channel, token.String()).
				Component(ComponentBuffers).
				Category(errors.CategoryDomainState).
				Context("token", token.String()).
				Context("channel", channel).
				Build()
		}
		m.growChannels(token, unit, channel+1)
	}

	buf.SetChannelID(channel)

	channelChain := unit.channelChains[channel]
	if bufChain := buf.Chain(); bufChain != nil {
		if bufChain != channelChain {
			channelChain.MergeChain(bufChain)
		}
	} else {
		buf.SetChain(channelChain)
	}

	unit.rootBuffers[channel].AddChild(buf)
	return nil
}

// RemoveAudioBuffer detaches buf from (token, channel)'s root.
func (m *Manager) RemoveAudioBuffer(buf *AudioBuffer, token conf.ProcessingToken, channel uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	root, err := m.rootBufferLocked(token, channel)
	if err != nil {
		return err
	}
	if !root.RemoveChild(buf) {
		return errors.New(ErrBufferNotFound).
			Component(ComponentBuffers).
			Category(errors.CategoryNotFound).
			Context("token", token.String()).
			Context("channel", channel).
			Build()
	}
	return nil
}

// ChannelBuffers lists the child buffers of (token, channel).
func (m *Manager) ChannelBuffers(token conf.ProcessingToken, channel uint32) ([]*AudioBuffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	root, err := m.rootBufferLocked(token, channel)
	if err != nil {
		return nil, err
	}
	return root.Children(), nil
}

// AddProcessor installs proc on buf's channel chain, targeting buf.
func (m *Manager) AddProcessor(proc BufferProcessor, buf *AudioBuffer) {
	if chain := buf.Chain(); chain != nil {
		chain.AddProcessor(proc, buf)
		return
	}
	chain := NewProcessingChain()
	chain.AddProcessor(proc, buf)
	buf.SetChain(chain)
}

// RemoveProcessor removes proc from buf's chain.
func (m *Manager) RemoveProcessor(proc BufferProcessor, buf *AudioBuffer) {
	if chain := buf.Chain(); chain != nil {
		chain.RemoveProcessor(proc, buf)
	}
}

// AddProcessorToChannel installs proc on (token, channel)'s chain targeting
// the root buffer.
func (m *Manager) AddProcessorToChannel(proc BufferProcessor, token conf.ProcessingToken, channel uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, err := m.unitFor(token, false)
	if err != nil {
		return err
	}
	if channel >= unit.channelCount {
		return m.outOfRange("add_processor_to_channel", token, channel, unit.channelCount)
	}
	unit.channelChains[channel].AddProcessor(proc, &unit.rootBuffers[channel].AudioBuffer)
	return nil
}

// RemoveProcessorFromChannel removes proc from (token, channel)'s chain.
func (m *Manager) RemoveProcessorFromChannel(proc BufferProcessor, token conf.ProcessingToken, channel uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, err := m.unitFor(token, false)
	if err != nil {
		return err
	}
	if channel >= unit.channelCount {
		return m.outOfRange("remove_processor_from_channel", token, channel, unit.channelCount)
	}
	unit.channelChains[channel].RemoveProcessor(proc, &unit.rootBuffers[channel].AudioBuffer)
	return nil
}

// AddProcessorToToken installs proc on the global chain once per channel
// root of the token.
func (m *Manager) AddProcessorToToken(proc BufferProcessor, token conf.ProcessingToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, err := m.unitFor(token, false)
	if err != nil {
		return err
	}
	for _, root := range unit.rootBuffers {
		m.globalChain.AddProcessor(proc, &root.AudioBuffer)
	}
	return nil
}

// RemoveProcessorFromToken removes proc from the global chain for every
// channel root of the token.
func (m *Manager) RemoveProcessorFromToken(proc BufferProcessor, token conf.ProcessingToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, err := m.unitFor(token, false)
	if err != nil {
		return err
	}
	for _, root := range unit.rootBuffers {
		m.globalChain.RemoveProcessor(proc, &root.AudioBuffer)
	}
	return nil
}

// SetFinalProcessor installs proc as a final processor on every channel
// root of the token.
func (m *Manager) SetFinalProcessor(proc BufferProcessor, token conf.ProcessingToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, err := m.unitFor(token, false)
	if err != nil {
		return err
	}
	for _, root := range unit.rootBuffers {
		if chain := root.Chain(); chain != nil {
			chain.AddFinalProcessor(proc, &root.AudioBuffer)
		}
	}
	return nil
}

// AttachQuickProcess wraps fn into a trivial processor and installs it on
// buf. The processor is returned so it can be removed later.
func (m *Manager) AttachQuickProcess(fn ProcessingFunc, buf *AudioBuffer) BufferProcessor {
	proc := NewQuickProcess(fn)
	m.AddProcessor(proc, buf)
	return proc
}

// ConnectNodeToChannel wraps node in a source processor on the channel's
// chain, rendering it into the channel root each cycle.
func (m *Manager) ConnectNodeToChannel(node graph.Node, token conf.ProcessingToken, channel uint32, mix Sample, clearBefore bool) (BufferProcessor, error) {
	proc := NewNodeSourceProcessor(node, mix, clearBefore)
	if err := m.AddProcessorToChannel(proc, token, channel); err != nil {
		return nil, err
	}
	return proc, nil
}

// ConnectNodeToBuffer wraps node in a source processor on buf's chain.
func (m *Manager) ConnectNodeToBuffer(node graph.Node, buf *AudioBuffer, mix Sample, clearBefore bool) BufferProcessor {
	proc := NewNodeSourceProcessor(node, mix, clearBefore)
	m.AddProcessor(proc, buf)
	return proc
}

// SupplyBufferTo attaches the same buffer into a channel as a mix source,
// injected after the global chain but before final processing. This is the
// continuous way to share one buffer across channels; CloneBufferForChannels
// copies instead.
func (m *Manager) SupplyBufferTo(buf *AudioBuffer, token conf.ProcessingToken, channel uint32, mix Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, err := m.unitFor(token, false)
	if err != nil {
		return err
	}
	if channel >= unit.channelCount {
		return m.outOfRange("supply_buffer_to", token, channel, unit.channelCount)
	}
	for _, s := range unit.supplied[channel] {
		if s.buffer == buf {
			return nil
		}
	}
	unit.supplied[channel] = append(unit.supplied[channel], suppliedBuffer{buffer: buf, mix: mix})
	return nil
}

// RemoveSuppliedBuffer detaches a previously supplied buffer.
func (m *Manager) RemoveSuppliedBuffer(buf *AudioBuffer, token conf.ProcessingToken, channel uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, err := m.unitFor(token, false)
	if err != nil {
		return err
	}
	if channel >= unit.channelCount {
		return m.outOfRange("remove_supplied_buffer", token, channel, unit.channelCount)
	}
	for i, s := range unit.supplied[channel] {
		if s.buffer == buf {
			unit.supplied[channel] = append(unit.supplied[channel][:i], unit.supplied[channel][i+1:]...)
			return nil
		}
	}
	return errors.New(ErrBufferNotFound).
		Component(ComponentBuffers).
		Category(errors.CategoryNotFound).
		Context("operation", "remove_supplied_buffer").
		Build()
}

// CloneBufferForChannels deep-copies buf once per listed channel and
// attaches each clone.
func (m *Manager) CloneBufferForChannels(buf *AudioBuffer, channels []uint32, token conf.ProcessingToken) ([]*AudioBuffer, error) {
	clones := make([]*AudioBuffer, 0, len(channels))
	for _, ch := range channels {
		clone := buf.Clone(ch)
		if err := m.AddAudioBuffer(clone, token, ch); err != nil {
			return clones, err
		}
		clones = append(clones, clone)
	}
	return clones, nil
}

// ValidateNumChannels ensures the domain has the requested channel count
// with buffers sized to bufferSize.
func (m *Manager) ValidateNumChannels(token conf.ProcessingToken, channels, bufferSize uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, err := m.unitFor(token, true)
	if err != nil {
		return err
	}
	m.growChannels(token, unit, channels)
	unit.bufferSize = bufferSize
	for _, root := range unit.rootBuffers {
		root.Resize(bufferSize)
	}
	return nil
}

// ResizeRootBuffers resizes every root in a token domain.
func (m *Manager) ResizeRootBuffers(token conf.ProcessingToken, bufferSize uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	unit, err := m.unitFor(token, false)
	if err != nil {
		return err
	}
	unit.bufferSize = bufferSize
	for _, root := range unit.rootBuffers {
		root.Resize(bufferSize)
	}
	return nil
}
