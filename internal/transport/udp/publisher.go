// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"

	"handbeat/internal/engine"
	"handbeat/internal/log"
)

// HeaderSize is the fixed packet prefix before the float payload.
const HeaderSize = 4 + 8 + 2

// FeatureCount is the number of feature floats leading every payload.
const FeatureCount = 5

// Source is the engine surface the publisher samples.
type Source interface {
	Features() engine.Frame
	Bins() int
	Levels(dst []float64) error
}

// Publisher periodically samples the engine's analysis frame, packs it into
// a binary packet, and sends it with a Sender. It runs in a separate
// goroutine managed by Start and Stop.
type Publisher struct {
	sender   *Sender
	src      Source
	interval time.Duration
	spectrum bool
	log      log.Component

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex

	sequenceNum uint32

	// Reused each tick.
	levels []float64
	packet []byte
}

// NewPublisher creates a publisher. With spectrum set, the per-bin levels
// follow the five features in every packet. An interval <= 0 defaults to
// 16ms (~60Hz).
func NewPublisher(interval time.Duration, sender *Sender, src Source, spectrum bool) (*Publisher, error) {
	if sender == nil {
		return nil, errors.New("udp: sender cannot be nil")
	}
	if src == nil {
		return nil, errors.New("udp: source cannot be nil")
	}
	p := &Publisher{
		sender:   sender,
		src:      src,
		interval: interval,
		spectrum: spectrum,
		log:      log.For("UDPPublisher"),
	}
	if p.interval <= 0 {
		p.interval = 16 * time.Millisecond
		p.log.Warnf("invalid interval, defaulting to %s", p.interval)
	}
	p.log.Infof("initializing (interval: %s, spectrum: %t)", p.interval, spectrum)
	return p, nil
}

// Start begins the periodic publishing process. Calling Start while running
// is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		p.log.Warnf("start called but already running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it.
// It is safe to call Stop multiple times.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Infof("stopped after %d packets", p.sequenceNum)
	return nil
}

/*
UDP Packet Structure (BigEndian)

|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<----- N * 4 Bytes ----->|
+-------------------+-----------------------+---------------+-------------------------+
|  Sequence Number  |       Timestamp       |     Value     |         Values          |
|      (uint32)     |  (int64, ns of epoch) |     Count     |      (N * float32)      |
|                   |                       |    (uint16)   |                         |
+-------------------+-----------------------+---------------+-------------------------+

Values: bass, mid, treble, level, kickPulse, then the per-bin levels when
spectrum publishing is on.
*/

func (p *Publisher) publish() {
	packet, err := p.buildPacket(time.Now())
	if err != nil {
		p.log.Errorf("error building packet: %v", err)
		return
	}
	if err := p.sender.Send(packet); err == nil {
		p.log.Debugf("sent packet %d (%d bytes)", p.sequenceNum, len(packet))
	}
}

// buildPacket encodes the current frame into the reused packet buffer.
func (p *Publisher) buildPacket(now time.Time) ([]byte, error) {
	values := p.src.Features().Values()

	var levels []float64
	if p.spectrum {
		if n := p.src.Bins(); n > 0 {
			if len(p.levels) != n {
				p.levels = make([]float64, n)
			}
			if err := p.src.Levels(p.levels); err != nil {
				return nil, err
			}
			levels = p.levels
		}
	}
	count := FeatureCount + len(levels)
	if count > math.MaxUint16 {
		return nil, errors.New("udp: too many values for one packet")
	}

	p.sequenceNum++
	b := p.packet[:0]
	b = binary.BigEndian.AppendUint32(b, p.sequenceNum)
	b = binary.BigEndian.AppendUint64(b, uint64(now.UnixNano()))
	b = binary.BigEndian.AppendUint16(b, uint16(count))
	for _, v := range values {
		b = binary.BigEndian.AppendUint32(b, math.Float32bits(float32(v)))
	}
	for _, v := range levels {
		b = binary.BigEndian.AppendUint32(b, math.Float32bits(float32(v)))
	}
	p.packet = b
	return b, nil
}

// Close stops the publisher.
func (p *Publisher) Close() error {
	return p.Stop()
}

// Ensure the interfaces are satisfied at compile time.
var (
	_ interface{ Close() error } = (*Publisher)(nil)
	_ Source                     = (*engine.AudioEngine)(nil)
)
