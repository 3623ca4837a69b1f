// Package pipeline wires the CSI parsers to a bounded record buffer and the
// persistence and rendering collaborators. One Pipeline serves one
// transport; each owns its own buffer.
package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/banshee-data/csi.monitor/internal/csi"
	"github.com/banshee-data/csi.monitor/internal/csi/buffer"
	"github.com/banshee-data/csi.monitor/internal/csi/parse"
	"github.com/banshee-data/csi.monitor/internal/monitoring"
	"github.com/banshee-data/csi.monitor/internal/timeutil"
)

// DefaultExpectedLength is the working amplitude length when none is set.
const DefaultExpectedLength = 64

// Persister stores accepted records. It is called once per record, in
// order, from the pipeline's loop.
type Persister interface {
	Persist(ctx context.Context, rec csi.Record) error
}

// Renderer receives the buffer contents after every accepted record. The
// slice is owned by the renderer.
type Renderer interface {
	Render(snapshot []csi.Record)
}

// TagResolver maps a binary frame's source address to a tag.
type TagResolver func(csi.SourceAddress) uint64

// Config configures a Pipeline.
type Config struct {
	Transport      string // label used in logs and metrics
	ExpectedLength int
	MaxFrames      int
	TargetTag      uint64
	Persister      Persister
	Renderer       Renderer
	Stats          *Stats
	Clock          timeutil.Clock
	ResolveTag     TagResolver
}

// Pipeline turns raw transport chunks into buffered records.
type Pipeline struct {
	transport      string
	logf           func(format string, v ...interface{})
	expectedLength int
	targetTag      uint64
	buf            *buffer.RecordBuffer
	persister      Persister
	renderer       Renderer
	stats          *Stats
	resolveTag     TagResolver
	epoch          timeutil.Epoch
}

// New creates a Pipeline, applying defaults for unset fields.
func New(cfg Config) *Pipeline {
	if cfg.Transport == "" {
		cfg.Transport = "csi"
	}
	if cfg.ExpectedLength <= 0 {
		cfg.ExpectedLength = DefaultExpectedLength
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Stats == nil {
		cfg.Stats = NewStats(cfg.Transport, nil, cfg.Clock)
	}
	if cfg.ResolveTag == nil {
		target := cfg.TargetTag
		cfg.ResolveTag = func(csi.SourceAddress) uint64 { return target }
	}
	return &Pipeline{
		transport:      cfg.Transport,
		logf:           monitoring.Prefixed(cfg.Transport),
		expectedLength: cfg.ExpectedLength,
		targetTag:      cfg.TargetTag,
		buf:            buffer.New(cfg.MaxFrames),
		persister:      cfg.Persister,
		renderer:       cfg.Renderer,
		stats:          cfg.Stats,
		resolveTag:     cfg.ResolveTag,
		epoch:          timeutil.NewEpoch(cfg.Clock),
	}
}

// Transport returns the pipeline's transport label.
func (p *Pipeline) Transport() string { return p.transport }

// Stats returns the pipeline's counters.
func (p *Pipeline) Stats() *Stats { return p.stats }

// Snapshot returns the buffered records, oldest first.
func (p *Pipeline) Snapshot() []csi.Record { return p.buf.Snapshot() }

// TargetTag returns the tag records must carry to be accepted.
func (p *Pipeline) TargetTag() uint64 { return p.targetTag }

// ExpectedLength returns the configured amplitude length.
func (p *Pipeline) ExpectedLength() int { return p.expectedLength }

// HandleLine frames one text chunk and accepts every valid record in it.
// Invalid UTF-8 is dropped before framing. The per-packet results are
// returned so callers can inspect discards.
func (p *Pipeline) HandleLine(ctx context.Context, line string) []parse.Result {
	p.stats.AddPacket(len(line))

	results := parse.FrameLine(strings.ToValidUTF8(line, ""), p.expectedLength)
	for _, r := range results {
		if !r.OK() {
			p.stats.AddDiscard(r.Reason.String())
			continue
		}
		p.Accept(ctx, r.Record)
	}
	return results
}

// HandleDatagram decodes one binary frame. Its tag comes from the tag
// resolver and its timestamp is microseconds since the pipeline started.
// A short frame is counted and returned as an error; the caller should
// carry on with the next datagram.
func (p *Pipeline) HandleDatagram(ctx context.Context, b []byte) error {
	p.stats.AddPacket(len(b))

	frame, err := parse.DecodeFrame(b)
	if err != nil {
		if errors.Is(err, parse.ErrFrameTooShort) {
			p.stats.AddDiscard("frame_too_short")
		}
		return err
	}

	p.Accept(ctx, frame.Record(p.resolveTag(frame.Source), p.epoch.Micros(), p.expectedLength))
	return nil
}

// Accept buffers rec if it matches the target tag, persists it and hands a
// snapshot to the renderer. It reports whether rec was accepted.
func (p *Pipeline) Accept(ctx context.Context, rec csi.Record) bool {
	if rec.Tag != p.targetTag {
		p.stats.AddFiltered()
		return false
	}

	p.buf.Push(rec)
	p.stats.AddAccepted(p.buf.Len())

	if p.persister != nil {
		if err := p.persister.Persist(ctx, rec); err != nil {
			p.stats.AddPersistError()
			p.logf("failed to persist record tag=%d ts=%d: %v", rec.Tag, rec.Timestamp, err)
		}
	}
	if p.renderer != nil {
		p.renderer.Render(p.buf.Snapshot())
	}
	return true
}

// MultiPersister fans a record out to several persisters. Every persister
// is called; the errors are joined.
type MultiPersister []Persister

func (m MultiPersister) Persist(ctx context.Context, rec csi.Record) error {
	var errs []error
	for _, p := range m {
		if err := p.Persist(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StaticTags builds a TagResolver from an address→tag table. Unknown
// sources resolve to fallback.
func StaticTags(tags map[csi.SourceAddress]uint64, fallback uint64) TagResolver {
	return func(a csi.SourceAddress) uint64 {
		if tag, ok := tags[a]; ok {
			return tag
		}
		return fallback
	}
}
