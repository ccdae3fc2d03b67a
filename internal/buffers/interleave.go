package buffers

import (
	"github.com/mayaflux/mayaflux-go/internal/conf"
	"github.com/mayaflux/mayaflux-go/internal/errors"
)

// FillFromInterleaved copies interleaved host samples into the token's root
// buffers, de-interleaving channel by channel.
func (m *Manager) FillFromInterleaved(src []Sample, frames uint32, token conf.ProcessingToken, channels uint32) error {
	m.mu.Lock()
	unit, err := m.unitFor(token, false)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	roots := unit.rootBuffers
	m.mu.Unlock()

	if uint32(len(roots)) < channels {
		channels = uint32(len(roots))
	}

	for _, root := range roots[:channels] {
		if uint32(root.Frames()) < frames {
			frames = uint32(root.Frames())
		}
	}

	for frame := uint32(0); frame < frames; frame++ {
		for ch := uint32(0); ch < channels; ch++ {
			roots[ch].Data()[frame] = src[frame*channels+ch]
		}
	}
	return nil
}

// FillInterleaved copies the token's root buffers into an interleaved host
// layout.
func (m *Manager) FillInterleaved(dst []Sample, frames uint32, token conf.ProcessingToken, channels uint32) error {
	m.mu.Lock()
	unit, err := m.unitFor(token, false)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	roots := unit.rootBuffers
	m.mu.Unlock()

	if uint32(len(roots)) < channels {
		channels = uint32(len(roots))
	}

	for _, root := range roots[:channels] {
		if uint32(root.Frames()) < frames {
			frames = uint32(root.Frames())
		}
	}

	for frame := uint32(0); frame < frames; frame++ {
		for ch := uint32(0); ch < channels; ch++ {
			dst[frame*channels+ch] = roots[ch].Data()[frame]
		}
	}
	return nil
}

// setupInputBuffers allocates one capture buffer per input channel.
func (m *Manager) setupInputBuffers(channels, bufferSize uint32) {
	m.inputBuffers = make([]*AudioBuffer, channels)
	for ch := uint32(0); ch < channels; ch++ {
		m.inputBuffers[ch] = NewAudioBuffer(ch, bufferSize)
	}
}

// InputBuffer returns the capture buffer for an input channel.
func (m *Manager) InputBuffer(channel uint32) (*AudioBuffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if channel >= uint32(len(m.inputBuffers)) {
		return nil, m.outOfRange("input_buffer", m.defaultToken, channel, uint32(len(m.inputBuffers)))
	}
	return m.inputBuffers[channel], nil
}

// ProcessInput de-interleaves captured host samples into the input buffers
// and forwards each channel to its registered listeners.
func (m *Manager) ProcessInput(input []Sample, channels, frames uint32) {
	m.mu.Lock()
	inputBuffers := m.inputBuffers
	listeners := m.inputListeners
	m.mu.Unlock()

	if uint32(len(inputBuffers)) < channels {
		channels = uint32(len(inputBuffers))
	}

	for ch := uint32(0); ch < channels; ch++ {
		buf := inputBuffers[ch]
		data := buf.Data()
		n := frames
		if uint32(len(data)) < n {
			n = uint32(len(data))
		}
		for frame := uint32(0); frame < n; frame++ {
			data[frame] = input[frame*channels+ch]
		}
		buf.MarkDataForCycle()

		for _, listener := range listeners[ch] {
			ldata := listener.Data()
			copy(ldata, data[:min(len(ldata), len(data))])
			listener.MarkDataForCycle()
		}
	}
}

// RegisterInputListener routes captured samples from an input channel into
// buf each callback.
func (m *Manager) RegisterInputListener(buf *AudioBuffer, inputChannel uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inputChannel >= uint32(len(m.inputBuffers)) {
		return m.outOfRange("register_input_listener", m.defaultToken, inputChannel, uint32(len(m.inputBuffers)))
	}
	for _, existing := range m.inputListeners[inputChannel] {
		if existing == buf {
			return nil
		}
	}
	m.inputListeners[inputChannel] = append(m.inputListeners[inputChannel], buf)
	return nil
}

// UnregisterInputListener stops routing an input channel into buf.
func (m *Manager) UnregisterInputListener(buf *AudioBuffer, inputChannel uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	listeners := m.inputListeners[inputChannel]
	for i, existing := range listeners {
		if existing == buf {
			m.inputListeners[inputChannel] = append(listeners[:i], listeners[i+1:]...)
			return nil
		}
	}
	return errors.New(ErrBufferNotFound).
		Component(ComponentBuffers).
		Category(errors.CategoryNotFound).
		Context("operation", "unregister_input_listener").
		Context("input_channel", inputChannel).
		Build()
}
